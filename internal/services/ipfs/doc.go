// Package ipfs pins token content on the local Kubo node.
//
// LocalPinService talks to the Kubo RPC API (every command is a POST under
// /api/v0) and keeps its own record of which CIDs each token key asked for in
// the preference store under ipfs.local_pins. Two tokens can reference the
// same CID; the CID is only unpinned from Kubo once no key refers to it.
package ipfs
