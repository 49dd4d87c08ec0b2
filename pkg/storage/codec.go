package storage

import "encoding/binary"

// Fixed-width little-endian helpers shared by the page, log, and catalog
// codecs. Centralized here so the on-disk byte order is changed in exactly
// one place if it ever needs to be.

func putUint16(b []byte, v uint16) { binary.LittleEndian.PutUint16(b, v) }
func getUint16(b []byte) uint16    { return binary.LittleEndian.Uint16(b) }

func putUint32(b []byte, v uint32) { binary.LittleEndian.PutUint32(b, v) }
func getUint32(b []byte) uint32    { return binary.LittleEndian.Uint32(b) }

func putUint64(b []byte, v uint64) { binary.LittleEndian.PutUint64(b, v) }
func getUint64(b []byte) uint64    { return binary.LittleEndian.Uint64(b) }
