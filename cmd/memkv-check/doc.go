// Command memkv-check verifies memkv snapshot files offline.
//
// Usage:
//
//	memkv-check [--output table|json|yaml] check [--progress] FILE...
//	memkv-check dump [--out FILE] [--keep-expired] FILE
//	memkv-check list [--prefix dump] DIR
//	memkv-check archive --bucket NAME [--endpoint HOST:PORT] list
//	memkv-check archive --bucket NAME fetch SNAPSHOT [DEST]
//
// check decodes a file in check mode: problems are collected and reported
// instead of aborting, and the exit status is 1 when any file has errors.
package main
