// Package message owns payload variants and their binary encoding.
//
// Ownership boundary:
// - Tagged (type tag + payload) unit exchanged after framing
// - Empty, String, StringArray, Int, IntArray, DataBuffer variants
// - DecodeError carrying the attempted kind
package message
