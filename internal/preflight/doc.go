// Package preflight provides readiness checks for the external programs,
// services and filesystem paths that carescribe depends on.
//
// These checks run in two contexts:
//   - The server logs failed checks at startup so a missing ffmpeg or an
//     unwritable directory shows up before the first job.
//   - The CLI "carescribe doctor" command prints every result.
//
// Checks for optional services are skipped when the service is not
// configured.
package preflight
