// Package transcript exports conversations for sharing and backup.
//
// # Markdown
//
// Markdown renders the title, the start and last-activity times, then each
// message under a **You** or **Assistant** heading. Assistant messages carry
// their confidence and audit id when present, followed by a Sources list
// built from the citations.
//
// # HTML
//
// HTML converts the Markdown rendering with goldmark and wraps it in a
// standalone page:
//
//	page, err := transcript.HTML(conv, st.Select(conv.ID))
//
// goldmark runs with its default options, so raw HTML inside message text is
// omitted from the output rather than passed through.
package transcript
