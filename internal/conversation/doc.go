// Package conversation owns the local conversation state and the send pipeline.
//
// # Overview
//
// The package sits between the CLI and the Agent Service. Every prompt goes
// through Service.Send, which records it, classifies it and forwards it; every
// result, good or bad, is appended to the same conversation log.
//
// # Store
//
// Store holds the conversation list (most recently created first) and one
// append-only message log per conversation:
//
//	kv, _ := store.Open(ctx, store.Options{Backend: store.BackendSQLite, Path: path})
//	st, _ := conversation.NewStore(ctx, kv)
//
// Key operations:
//
//   - CreateConversation(): add a "New Chat" record at the head of the list
//   - AppendMessage(id, msg): append and refresh updatedAt/lastSnippet
//   - RefreshMetadata(id, text, ts): refresh updatedAt/lastSnippet only
//   - SetTitleOnce(id, text): title the conversation exactly once
//   - Select(id): copy of the conversation log
//
// Each mutation is written through to the KV backend under
// store.KeyConversations and store.KeyMessages before the call returns.
// Rehydrate treats missing or malformed data as an empty store and drops
// message logs whose conversation is unknown.
//
// # Service
//
// Service runs the pipeline for one user:
//
//  1. Create and activate a conversation if none is active
//  2. Append the user message
//  3. Detect the language and route the prompt to a domain
//  4. Ask the Agent Service with a domain-shaped context
//  5. Append the reply, refresh metadata and title the conversation, or
//     append "Error: ..." when the call failed
//
// Sends may overlap. Every step applies to the live Store, so replies land in
// the order they complete and none is lost.
//
// # Event Broadcasting
//
// A Store built WithBroadcaster publishes each applied append. Subscribers
// pass a conversation id, or AllConversations for everything:
//
//	events, subID := broadcaster.Subscribe(ctx, conversation.AllConversations)
//	defer broadcaster.Unsubscribe(conversation.AllConversations, subID)
//
// Publishing never blocks; a subscriber with a full buffer misses events.
package conversation
