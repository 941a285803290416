package reader

import (
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/encoding/unicode"

	"github.com/tsawler/vellum/core"
	"github.com/tsawler/vellum/crypt"
)

// Metadata holds the document information dictionary in decoded form.
// Missing entries are zero values; Custom carries any non-standard keys.
type Metadata struct {
	Title    string
	Author   string
	Subject  string
	Keywords string
	Creator  string
	Producer string

	CreationDate time.Time
	ModDate      time.Time

	Custom map[string]string
}

// Metadata returns the document information entries. Documents without an
// /Info dictionary return an empty Metadata, not an error. When the
// MetadataRequiresAuth option is set, encrypted documents must be
// authenticated first.
func (d *Document) Metadata() (*Metadata, error) {
	if d.opts.MetadataRequiresAuth && d.contentLocked() {
		return nil, crypt.ErrNotAuthenticated
	}

	meta := &Metadata{Custom: make(map[string]string)}

	infoObj := d.xref.Trailer.Get("Info")
	if infoObj == nil {
		return meta, nil
	}
	resolved, err := d.Resolve(infoObj)
	if err != nil {
		return nil, err
	}
	info, ok := resolved.(core.Dict)
	if !ok {
		// A malformed /Info is not worth failing the document over.
		d.warn("trailer /Info is not a dictionary")
		return meta, nil
	}

	for _, key := range info.Keys() {
		value, err := d.Resolve(info.Get(key))
		if err != nil {
			continue
		}
		str, ok := value.(core.String)
		if !ok {
			continue
		}
		text := DecodeTextString(string(str))

		switch key {
		case "Title":
			meta.Title = text
		case "Author":
			meta.Author = text
		case "Subject":
			meta.Subject = text
		case "Keywords":
			meta.Keywords = text
		case "Creator":
			meta.Creator = text
		case "Producer":
			meta.Producer = text
		case "CreationDate":
			meta.CreationDate, _ = ParseDate(text)
		case "ModDate":
			meta.ModDate, _ = ParseDate(text)
		default:
			meta.Custom[key] = text
		}
	}
	return meta, nil
}

// DecodeTextString converts a PDF text string to UTF-8. Strings carrying a
// UTF-16BE byte order mark are transcoded; everything else passes through
// byte for byte.
func DecodeTextString(s string) string {
	b := []byte(s)
	if len(b) >= 2 && b[0] == 0xFE && b[1] == 0xFF {
		decoder := unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM).NewDecoder()
		if out, err := decoder.Bytes(b); err == nil {
			return string(out)
		}
	}
	return s
}

// ParseDate parses a PDF date string, "D:YYYYMMDDHHmmSSOHH'mm'". Every
// component after the year is optional; the timezone defaults to UTC.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimPrefix(s, "D:")

	digits := func(n int) (int, bool) {
		if len(s) < n {
			return 0, false
		}
		v, err := strconv.Atoi(s[:n])
		if err != nil {
			return 0, false
		}
		s = s[n:]
		return v, true
	}

	year, ok := digits(4)
	if !ok {
		return time.Time{}, &core.ParseError{Pos: -1, Msg: "date has no year: " + strconv.Quote(s)}
	}
	month := 1
	if v, ok := digits(2); ok {
		month = v
	}
	day := 1
	if v, ok := digits(2); ok {
		day = v
	}
	hour, _ := digits(2)
	minute, _ := digits(2)
	second, _ := digits(2)

	loc := time.UTC
	if len(s) > 0 {
		switch s[0] {
		case 'Z':
			// UTC, possibly followed by "00'00'".
		case '+', '-':
			sign := 1
			if s[0] == '-' {
				sign = -1
			}
			s = s[1:]
			tzHour, ok := digits(2)
			if !ok {
				break
			}
			var tzMin int
			s = strings.TrimPrefix(s, "'")
			if v, ok := digits(2); ok {
				tzMin = v
			}
			loc = time.FixedZone("", sign*(tzHour*3600+tzMin*60))
		}
	}

	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, &core.ParseError{Pos: -1, Msg: "date has out-of-range components"}
	}
	return time.Date(year, time.Month(month), day, hour, minute, second, 0, loc), nil
}
