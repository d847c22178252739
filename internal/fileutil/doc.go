// Package fileutil holds file writing helpers shared by the record store and
// the upload handlers.
package fileutil
