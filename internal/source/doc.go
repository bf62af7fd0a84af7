// Package source describes the public sources an idhunt run probes.
//
// A Descriptor names one source, the kind of adapter that normalizes its
// responses, the URL template to request and the detection rule to apply.
// Descriptors come from four places:
//   - Builtin: hand-written checks for well-known sites and APIs
//   - LoadWhatsMyName: the WhatsMyName username list (wmn-data.json)
//   - LoadEmailList: a WhatsMyName-style list of email checks
//   - LoadSherlock: the Sherlock project manifest (data.json), optionally
//     downloaded and cached by Fetcher
//
// URL templates use "{account}" as the subject placeholder.
package source
