// Package graph implements the research workflow as an explicit finite state
// machine over the nodes Think, Search, Download, Distill, Synthesize and
// End. The executor owns one conversation state for the duration of a turn,
// walks the guarded transition table until it reaches End, and emits stream
// events and trace events along the way.
//
// Node semantics:
//   - Think classifies the conversation: answer now, or refine a query and
//     retrieve more. An iteration ceiling bounds how many Think cycles a turn
//     may consume.
//   - Search resolves the refined query through the semantic cache; a miss
//     issues one external search under the trusted-domain filter. Empty
//     results loop back to Think while the retry budget lasts.
//   - Download fetches the content behind each result through a bounded
//     worker pool, embeds it and indexes it in the vector store.
//   - Distill compresses the fetched documents into bounded insights.
//   - Synthesize streams the final answer from the accumulated insights.
//   - End checkpoints the conversation state.
package graph
