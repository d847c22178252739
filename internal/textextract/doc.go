// Package textextract pulls plain transcript text out of uploaded .txt,
// .docx and .html files.
package textextract
