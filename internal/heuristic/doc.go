// Package heuristic implements strict mode: it re-scores resolutions by
// source reliability and adapter signals, demotes weak matches and
// excludes noise. It also applies the NSFW policy, strict or not.
package heuristic
