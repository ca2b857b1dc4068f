package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// maxPartBytes bounds a single decompressed XML part.
const maxPartBytes = 64 << 20

var errNoText = errors.New("document contains no text part")

// ConvertWord renders the body text of a .docx file.
func ConvertWord(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open docx: %w", err)
	}
	part, err := readPart(zr, "word/document.xml")
	if err != nil {
		return "", err
	}
	text, err := paragraphText(part, nil)
	if err != nil {
		return "", fmt.Errorf("parse docx: %w", err)
	}
	return "*DOCX/DOC document (converted to text):*\n\n" + text, nil
}

var slideName = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

// ConvertSlides renders each slide's text followed by its speaker notes.
func ConvertSlides(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pptx: %w", err)
	}

	type slide struct {
		n    int
		name string
	}
	var slides []slide
	for _, f := range zr.File {
		if m := slideName.FindStringSubmatch(f.Name); m != nil {
			n, _ := strconv.Atoi(m[1])
			slides = append(slides, slide{n: n, name: f.Name})
		}
	}
	if len(slides) == 0 {
		return "", errNoText
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].n < slides[j].n })

	skipFields := map[string]bool{"fld": true}
	var b strings.Builder
	b.WriteString("*PPTX document (converted to text per slide):*\n")
	for i, s := range slides {
		part, err := readPart(zr, s.name)
		if err != nil {
			return "", err
		}
		body, err := paragraphText(part, skipFields)
		if err != nil {
			return "", fmt.Errorf("parse %s: %w", s.name, err)
		}
		if body == "" {
			body = "No main text."
		}

		notes := "No speaker notes."
		if np := notesPartFor(zr, s.name); np != "" {
			if raw, err := readPart(zr, np); err == nil {
				if t, err := paragraphText(raw, skipFields); err == nil && t != "" {
					notes = t
				}
			}
		}

		fmt.Fprintf(&b, "\n\n*-- SLIDE %d --*", i+1)
		fmt.Fprintf(&b, "\n*Slide content:*\n%s", body)
		fmt.Fprintf(&b, "\n*Speaker notes:*\n%s", notes)
	}
	return b.String(), nil
}

type relationships struct {
	Rels []struct {
		Type   string `xml:"Type,attr"`
		Target string `xml:"Target,attr"`
	} `xml:"Relationship"`
}

// notesPartFor follows the slide's relationships to its notes slide.
func notesPartFor(zr *zip.Reader, slidePart string) string {
	dir, file := path.Split(slidePart)
	raw, err := readPart(zr, dir+"_rels/"+file+".rels")
	if err != nil {
		return ""
	}
	var rels relationships
	if err := xml.Unmarshal(raw, &rels); err != nil {
		return ""
	}
	for _, r := range rels.Rels {
		if strings.HasSuffix(r.Type, "/notesSlide") {
			return path.Clean(path.Join(dir, r.Target))
		}
	}
	return ""
}

func readPart(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", name, err)
		}
		defer rc.Close()
		data, err := ReadAllWithLimit(rc, maxPartBytes)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		return data, nil
	}
	return nil, fmt.Errorf("%w: %s", errNoText, name)
}

// paragraphText collects <t> runs, ending a line at each paragraph element.
// Elements whose local name is in skip are ignored with their content.
func paragraphText(data []byte, skip map[string]bool) (string, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	var (
		lines   []string
		line    strings.Builder
		inText  bool
		skipped int
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch {
			case skipped > 0 || skip[t.Name.Local]:
				skipped++
			case t.Name.Local == "t":
				inText = true
			case t.Name.Local == "tab":
				line.WriteByte('\t')
			case t.Name.Local == "br":
				line.WriteByte('\n')
			}
		case xml.EndElement:
			if skipped > 0 {
				skipped--
				continue
			}
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				if s := strings.TrimRight(line.String(), " \t"); s != "" {
					lines = append(lines, s)
				}
				line.Reset()
			}
		case xml.CharData:
			if inText && skipped == 0 {
				line.Write(t)
			}
		}
	}
	if s := strings.TrimSpace(line.String()); s != "" {
		lines = append(lines, s)
	}
	return strings.Join(lines, "\n"), nil
}
