// Package mediatypes holds the image extension allow-list shared by catalog
// synchronization and thumbnail generation.
//
// This package is a dependency-free foundation that can be imported by other
// packages without creating import cycles.
//
// Extensions are always handled lowercase and without the leading dot:
//
//	exts := mediatypes.NewExtensionSet([]string{".JPG", "png"})
//	exts.Allows("holiday.jpg") // true
//	exts.Allows("notes.txt")   // false
package mediatypes
