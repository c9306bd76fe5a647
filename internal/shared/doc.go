// Package shared groups code used by several packages that belongs to none
// of them. Its testutil subpackage builds resource archives and captures log
// output for tests; nothing under shared is imported by production code.
package shared
