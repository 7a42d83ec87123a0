package i18n

// span is a byte range of the scanned file
type span struct{ start, end int }

// frame is an open JSX element, or a {expression} inside element children
type frame struct {
	element bool
	braces  int
}

// jsxScanner walks a TSX/JSX file and collects the text runs between
// element tags and the source of every opening tag. It understands just
// enough JavaScript to skip strings and comments and to tell a tag from a
// comparison or a type parameter.
type jsxScanner struct {
	src   []byte
	pos   int
	stack []frame
	texts []span
	tags  []span
}

func (s *jsxScanner) run() {
	for s.pos < len(s.src) {
		if s.inText() {
			s.text()
		} else {
			s.code()
		}
	}
}

func (s *jsxScanner) inText() bool {
	return len(s.stack) > 0 && s.stack[len(s.stack)-1].element
}

func (s *jsxScanner) peek(n int) byte {
	if s.pos+n < len(s.src) {
		return s.src[s.pos+n]
	}
	return 0
}

// text consumes one run of element children up to the next tag or expression
func (s *jsxScanner) text() {
	start := s.pos
	for s.pos < len(s.src) && s.src[s.pos] != '<' && s.src[s.pos] != '{' {
		s.pos++
	}
	if s.pos > start {
		s.texts = append(s.texts, span{start, s.pos})
	}
	if s.pos >= len(s.src) {
		return
	}
	if s.src[s.pos] == '{' {
		s.stack = append(s.stack, frame{braces: 1})
		s.pos++
		return
	}
	s.tag()
}

// code consumes one token of script
func (s *jsxScanner) code() {
	c := s.src[s.pos]
	switch {
	case c == '/' && s.peek(1) == '/':
		for s.pos < len(s.src) && s.src[s.pos] != '\n' {
			s.pos++
		}
	case c == '/' && s.peek(1) == '*':
		s.pos += 2
		for s.pos < len(s.src) && !(s.src[s.pos] == '*' && s.peek(1) == '/') {
			s.pos++
		}
		s.pos += 2
	case c == '"' || c == '\'' || c == '`':
		s.skipString(c)
	case c == '{':
		if n := len(s.stack); n > 0 {
			s.stack[n-1].braces++
		}
		s.pos++
	case c == '}':
		s.pos++
		if n := len(s.stack); n > 0 && !s.stack[n-1].element {
			s.stack[n-1].braces--
			if s.stack[n-1].braces == 0 {
				s.stack = s.stack[:n-1]
			}
		}
	case c == '<' && s.tagStart():
		s.tag()
	default:
		s.pos++
	}
}

// skipString moves past a quoted literal. Plain quotes end at the line.
func (s *jsxScanner) skipString(q byte) {
	s.pos++
	for s.pos < len(s.src) {
		c := s.src[s.pos]
		switch {
		case c == '\\':
			s.pos += 2
			continue
		case c == q:
			s.pos++
			return
		case c == '\n' && q != '`':
			return
		}
		s.pos++
	}
}

// tagStart reports whether the '<' at pos opens a JSX tag in script
func (s *jsxScanner) tagStart() bool {
	next := s.peek(1)
	if next != '>' && !isLetter(next) {
		return false
	}
	i := s.pos - 1
	for i >= 0 && isSpace(s.src[i]) {
		i--
	}
	if i < 0 {
		return true
	}
	if s.src[i] == ')' || s.src[i] == ']' {
		return false
	}
	if !isIdent(s.src[i]) {
		return true
	}
	end := i + 1
	for i >= 0 && isIdent(s.src[i]) {
		i--
	}
	switch string(s.src[i+1 : end]) {
	case "return", "yield", "await", "default", "case":
		return true
	}
	return false
}

// tag consumes a tag starting at '<' and updates the element stack
func (s *jsxScanner) tag() {
	start := s.pos
	s.pos++
	closing := s.peek(0) == '/'
	braces := 0
	for s.pos < len(s.src) {
		c := s.src[s.pos]
		switch {
		case c == '"' || c == '\'' || c == '`':
			s.skipString(c)
			continue
		case c == '{':
			braces++
		case c == '}':
			braces--
		case c == '>' && braces <= 0:
			selfClosing := s.src[s.pos-1] == '/'
			s.pos++
			switch {
			case closing:
				s.popElement()
			case selfClosing:
				s.tags = append(s.tags, span{start, s.pos})
			default:
				s.tags = append(s.tags, span{start, s.pos})
				s.stack = append(s.stack, frame{element: true})
			}
			return
		}
		s.pos++
	}
}

// popElement closes the innermost element, dropping unbalanced expressions
func (s *jsxScanner) popElement() {
	for n := len(s.stack); n > 0; n = len(s.stack) {
		top := s.stack[n-1]
		s.stack = s.stack[:n-1]
		if top.element {
			return
		}
	}
}

func isLetter(c byte) bool { return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' }

func isIdent(c byte) bool { return isLetter(c) || c >= '0' && c <= '9' || c == '_' || c == '$' }

func isSpace(c byte) bool { return c == ' ' || c == '\t' || c == '\n' || c == '\r' }
