// Package properties reads and writes line oriented "key = value"
// configuration files without disturbing their layout.
//
// A Document keeps every logical line exactly as it was read. Comments
// (starting with '#' or '!'), blank lines, line terminators and the lines of
// keys that are not modified are written back byte for byte. Only a key whose
// value changes is rewritten, in the standard form:
//
//	key = value
//
// Keys that are added go to the end of the document and use the line
// terminator found first in the original text.
//
// Typical read-modify-write:
//
//	doc, err := properties.Load("/etc/app/app.properties")
//	if err != nil {
//	    return err
//	}
//	doc.Set("server.port", "8443")
//	err = doc.Save("/etc/app/app.properties")
package properties
