package duration

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Wire format:
//
//	List     := "[" Duration (", " Duration)* "]" | "[]"
//	Duration := Timestamp "/" Timestamp "/" Tag
//	Tag      := "modified" | "referred"
//
// Timestamps are written as "2006-01-02 15:04:05.F MST" with one to three
// fractional digits, so the format carries millisecond precision. Zones
// without an alphabetic abbreviation are written as a numeric offset
// ("-0300") instead.

const (
	tagModified = "modified"
	tagReferred = "referred"

	timestampLayout = "2006-01-02 15:04:05"
	zoneLayout      = "MST"
	offsetLayout    = "-0700"
)

var (
	// ErrNoData is returned for input that is not a bracketed list at all.
	ErrNoData = errors.New("duration list: no data")

	// ErrMalformed is wrapped by every error for a bracketed list that does
	// not follow the grammar.
	ErrMalformed = errors.New("duration list: malformed")
)

// GMT is the zone durations are written in unless a codec says otherwise.
var GMT = time.FixedZone("GMT", 0)

// Codec formats and parses duration lists in a fixed time zone.
type Codec struct {
	Location *time.Location
}

// DefaultCodec writes timestamps in GMT.
var DefaultCodec = Codec{Location: GMT}

// FormatList renders ds with the default codec.
func FormatList(ds []Duration) string { return DefaultCodec.FormatList(ds) }

// ParseList parses s with the default codec.
func ParseList(s string) ([]Duration, error) { return DefaultCodec.ParseList(s) }

func (c Codec) loc() *time.Location {
	if c.Location == nil {
		return GMT
	}
	return c.Location
}

// FormatList renders ds as "[d0, d1, ...]". A nil or empty list renders "[]".
func (c Codec) FormatList(ds []Duration) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, d := range ds {
		if i > 0 {
			b.WriteString(", ")
		}
		c.writeDuration(&b, d)
	}
	b.WriteByte(']')
	return b.String()
}

// Format renders a single duration.
func (c Codec) Format(d Duration) string {
	var b strings.Builder
	c.writeDuration(&b, d)
	return b.String()
}

func (c Codec) writeDuration(b *strings.Builder, d Duration) {
	b.WriteString(c.FormatTime(d.Begin))
	b.WriteByte('/')
	b.WriteString(c.FormatTime(d.End))
	b.WriteByte('/')
	if d.Modified {
		b.WriteString(tagModified)
	} else {
		b.WriteString(tagReferred)
	}
}

// FormatTime writes t truncated to milliseconds, e.g. "2015-06-24 04:59:06.0 GMT".
func (c Codec) FormatTime(t time.Time) string {
	t = t.In(c.loc())
	frac := fmt.Sprintf("%03d", t.Nanosecond()/int(time.Millisecond))
	frac = strings.TrimRight(frac, "0")
	if frac == "" {
		frac = "0"
	}
	return t.Format(timestampLayout) + "." + frac + " " + zone(t)
}

// zone names t's zone by abbreviation, or by offset when the abbreviation is
// missing or itself numeric (e.g. "-03"), since those do not parse back.
func zone(t time.Time) string {
	name, _ := t.Zone()
	if name == "" || name[0] == '+' || name[0] == '-' {
		return t.Format(offsetLayout)
	}
	return name
}

// ParseTime is the inverse of FormatTime.
func (c Codec) ParseTime(s string) (time.Time, error) {
	// The fractional second is accepted after the seconds field even though
	// the layout does not spell it out.
	t, err := time.ParseInLocation(timestampLayout+" "+zoneLayout, s, c.loc())
	if err != nil {
		var oerr error
		if t, oerr = time.ParseInLocation(timestampLayout+" "+offsetLayout, s, c.loc()); oerr != nil {
			return time.Time{}, fmt.Errorf("%w: timestamp %q: %v", ErrMalformed, s, err)
		}
	}
	return t, nil
}

// ParseList parses the output of FormatList. Input without the enclosing
// brackets yields ErrNoData; anything else that breaks the grammar yields an
// error wrapping ErrMalformed. "[]" parses to an empty, non-nil slice.
func (c Codec) ParseList(s string) ([]Duration, error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 || s[0] != '[' || s[len(s)-1] != ']' {
		return nil, ErrNoData
	}

	p := parser{codec: c, toks: lex(s)}
	if _, err := p.expect(tokOpen); err != nil {
		return nil, err
	}
	out := []Duration{}
	if p.peek().kind == tokClose {
		p.next()
		return out, p.end()
	}
	for {
		d, err := p.duration()
		if err != nil {
			return nil, err
		}
		out = append(out, d)

		tok := p.next()
		switch tok.kind {
		case tokComma:
			continue
		case tokClose:
			return out, p.end()
		default:
			return nil, p.unexpected(tok, "',' or ']'")
		}
	}
}

// Parse parses a single "begin/end/tag" duration.
func (c Codec) Parse(s string) (Duration, error) {
	p := parser{codec: c, toks: lex(strings.TrimSpace(s))}
	d, err := p.duration()
	if err != nil {
		return Duration{}, err
	}
	return d, p.end()
}

type tokenKind int

const (
	tokText tokenKind = iota
	tokOpen
	tokClose
	tokComma
	tokSlash
	tokEOF
)

func (k tokenKind) String() string {
	switch k {
	case tokText:
		return "text"
	case tokOpen:
		return "'['"
	case tokClose:
		return "']'"
	case tokComma:
		return "','"
	case tokSlash:
		return "'/'"
	}
	return "end of input"
}

type token struct {
	kind tokenKind
	text string
	pos  int
}

// lex splits s on the four delimiter bytes. Text runs are trimmed of
// surrounding spaces; whitespace between delimiters produces no token.
func lex(s string) []token {
	var toks []token
	start := -1
	flush := func(end int) {
		if start >= 0 {
			toks = append(toks, token{kind: tokText, text: strings.TrimSpace(s[start:end]), pos: start})
			start = -1
		}
	}
	for i := 0; i < len(s); i++ {
		var kind tokenKind
		switch s[i] {
		case '[':
			kind = tokOpen
		case ']':
			kind = tokClose
		case ',':
			kind = tokComma
		case '/':
			kind = tokSlash
		default:
			if start < 0 && s[i] != ' ' {
				start = i
			}
			continue
		}
		flush(i)
		toks = append(toks, token{kind: kind, pos: i})
	}
	flush(len(s))
	return append(toks, token{kind: tokEOF, pos: len(s)})
}

type parser struct {
	codec Codec
	toks  []token
	i     int
}

func (p *parser) peek() token { return p.toks[p.i] }

func (p *parser) next() token {
	t := p.toks[p.i]
	if t.kind != tokEOF {
		p.i++
	}
	return t
}

func (p *parser) expect(kind tokenKind) (token, error) {
	t := p.next()
	if t.kind != kind {
		return t, p.unexpected(t, kind.String())
	}
	return t, nil
}

func (p *parser) unexpected(t token, want string) error {
	if t.kind == tokText {
		return fmt.Errorf("%w: offset %d: got %q, want %s", ErrMalformed, t.pos, t.text, want)
	}
	return fmt.Errorf("%w: offset %d: got %s, want %s", ErrMalformed, t.pos, t.kind, want)
}

func (p *parser) end() error {
	if t := p.next(); t.kind != tokEOF {
		return p.unexpected(t, "end of input")
	}
	return nil
}

func (p *parser) duration() (Duration, error) {
	begin, err := p.timestamp()
	if err != nil {
		return Duration{}, err
	}
	if _, err := p.expect(tokSlash); err != nil {
		return Duration{}, err
	}
	end, err := p.timestamp()
	if err != nil {
		return Duration{}, err
	}
	if _, err := p.expect(tokSlash); err != nil {
		return Duration{}, err
	}
	tag, err := p.expect(tokText)
	if err != nil {
		return Duration{}, err
	}
	modified, err := parseTag(tag.text)
	if err != nil {
		return Duration{}, err
	}
	if end.Before(begin) {
		return Duration{}, fmt.Errorf("%w: offset %d: range ends before it begins", ErrMalformed, tag.pos)
	}
	return Duration{Begin: begin, End: end, Modified: modified}, nil
}

func (p *parser) timestamp() (time.Time, error) {
	t, err := p.expect(tokText)
	if err != nil {
		return time.Time{}, err
	}
	return p.codec.ParseTime(t.text)
}

// parseTag also accepts the tags older writers used: the bare booleans and
// "updated".
func parseTag(s string) (bool, error) {
	switch s {
	case tagModified, "updated", "true":
		return true, nil
	case tagReferred, "false":
		return false, nil
	}
	return false, fmt.Errorf("%w: unknown tag %q", ErrMalformed, s)
}
