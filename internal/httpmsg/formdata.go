package httpmsg

import "strings"

// FormDataItem is produced by ParseFormData for each part of a
// multipart/form-data body once the full request body has been
// buffered.
type FormDataItem struct {
	Name    string
	File    string
	Data    []byte
	Headers HeaderStore
}

// ParseFormData post-processes a fully received request body whose
// Content-Type is multipart/form-data. It reads the boundary option
// off the header, splits the body on "--boundary" delimiters, and for
// each part re-parses a small header block (name: value per line,
// terminated by a blank line) recording content-disposition's "name"
// and "filename" options. Single-line text values are also appended
// to formData as flat "key=value" pairs.
func ParseFormData(contentTypeHeader *Header, body []byte) ([]FormDataItem, []string, error) {
	boundary := contentTypeHeader.OptionValue("boundary")
	if boundary == "" {
		return nil, nil, errNoBoundary
	}
	delim := "--" + boundary

	var items []FormDataItem
	var flat []string

	raw := string(body)
	// Split on the delimiter; the first and last chunks are preamble/epilogue.
	parts := strings.Split(raw, delim)
	for _, part := range parts {
		part = strings.TrimPrefix(part, "\r\n")
		if part == "" || part == "--" || strings.HasPrefix(part, "--") {
			continue
		}
		part = strings.TrimSuffix(part, "\r\n")
		headerEnd := strings.Index(part, "\r\n\r\n")
		if headerEnd < 0 {
			continue
		}
		headerBlock := part[:headerEnd]
		partBody := []byte(part[headerEnd+4:])

		item := FormDataItem{Data: partBody}
		for _, line := range strings.Split(headerBlock, "\r\n") {
			if line == "" {
				continue
			}
			name, value, ok := strings.Cut(line, ":")
			if !ok {
				continue
			}
			name = strings.TrimSpace(name)
			segs := strings.Split(value, ";")
			item.Headers.Add(name, strings.TrimSpace(segs[0]))
			for _, seg := range segs[1:] {
				item.Headers.AddOption(strings.TrimSpace(seg))
			}
		}

		if cd := item.Headers.Get("Content-Disposition"); cd != "" {
			idx := item.Headers.IndexOfName("Content-Disposition")
			h := item.Headers.At(idx)
			item.Name = h.OptionValue("name")
			item.File = h.OptionValue("filename")
		}

		items = append(items, item)
		if item.File == "" && item.Name != "" && !strings.Contains(string(partBody), "\n") {
			flat = append(flat, item.Name+"="+string(partBody))
		}
	}

	return items, flat, nil
}

var errNoBoundary = &urlDecodeError{"multipart/form-data: missing boundary"}

// SplitFormURLEncoded splits a x-www-form-urlencoded body on '&' and
// decodes '+'/'%HH' within each pair, returning the ordered raw pairs
// with values decoded (keys are decoded too, per the wire format).
func SplitFormURLEncoded(body []byte) ([]string, error) {
	if len(body) == 0 {
		return nil, nil
	}
	var out []string
	for _, raw := range strings.Split(string(body), "&") {
		if raw == "" {
			continue
		}
		key, value, hasEq := strings.Cut(raw, "=")
		dKey, err := URLDecode(key)
		if err != nil {
			return nil, err
		}
		if !hasEq {
			out = append(out, dKey)
			continue
		}
		dVal, err := URLDecode(value)
		if err != nil {
			return nil, err
		}
		out = append(out, dKey+"="+dVal)
	}
	return out, nil
}
