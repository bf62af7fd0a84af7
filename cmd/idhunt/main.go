// Package main provides the entry point for the idhunt CLI.
//
// idhunt probes public sources for usernames and emails, correlates the
// evidence into an identity aggregate and exports it as a dossier.
//
// Usage:
//
//	idhunt scan <username>
//	idhunt scan-email <email>
//	idhunt hunt -u <username> -e <email> --strict
//
// See --help for all available options.
package main

// main is the entry point for idhunt.
func main() {
	Execute()
}
