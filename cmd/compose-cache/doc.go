/*Command compose-cache builds the packed table for an XCompose-style
  file and writes its serialized cache blob to stdout.  Keysym names are
  resolved through a tab-separated name table (name, hex code per line)
  since the compose core never embeds keysym tables.  --reverse-endian
  byte-swaps the blob to cross-compile a cache for a host of the
  opposite endianness.

  Usage: compose-cache --keysym-names=names.tsv ~/.XCompose > 1234abcd.cache
*/
package main
