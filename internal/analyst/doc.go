// Package analyst sends a frozen aggregate to an OpenAI-compatible chat
// completion endpoint (DeepSeek by default) and returns a short
// intelligence summary. The analyst only reads evidence; its output is
// stored next to the aggregate and never changes it.
package analyst
