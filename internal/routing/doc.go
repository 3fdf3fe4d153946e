// Package routing picks the service domain for a message and shapes the context
// record sent to the Agent Service for that domain.
//
// Route runs three keyword classifiers (health, governance, education) over the
// lowercased text. They are not exclusive; priority alone decides:
//
//	health > governance > education > default (education)
//
// The per-domain context is a closed set of variants built by NewContext.
package routing
