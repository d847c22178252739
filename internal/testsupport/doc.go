// Package testsupport holds helpers shared by package tests: a config
// builder rooted in a temp directory, file writers and store setup.
package testsupport
