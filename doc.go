// Package mpq reads MPQ archives, the sealed container format used to ship
// game assets.
//
// An archive holds an encrypted hash table that maps file paths to slots in
// an encrypted block table, and a block table that records where and how each
// file is stored: as one unit or in fixed-size sectors, optionally
// compressed and encrypted with a key derived from the file name.
//
// Paths inside an archive use backslash separators and are matched without
// regard to ASCII case. The tables cannot enumerate paths on their own, so
// listing relies on a manifest: either one supplied by the caller or the
// archive's internal (listfile).
//
// Archive reads through an io.ReaderAt and is safe for concurrent use. It
// also implements fs.FS, fs.StatFS, fs.ReadFileFS and fs.ReadDirFS over
// slash-separated paths for compatibility with the standard library.
package mpq
