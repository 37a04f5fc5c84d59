package epub

import (
	"fmt"
	"strings"
	"time"
)

// TextDirection is the direction of a text run.
type TextDirection string

const (
	DirLTR  TextDirection = "ltr"
	DirRTL  TextDirection = "rtl"
	DirAuto TextDirection = "auto"
)

// TextRun is one language- and direction-tagged metadata value. Lang is
// inherited from the package default language when the element carries no
// xml:lang of its own.
type TextRun struct {
	Text string
	Dir  TextDirection
	Lang string
}

// Metadata is the validated metadata section of a package document.
// Construction requires at least one identifier, one title, and one
// language.
type Metadata struct {
	Identifiers []string
	Titles      []TextRun
	Languages   []string

	Creators     []TextRun
	Contributors []TextRun
	Publishers   []TextRun
	Descriptions []TextRun
	Rights       []TextRun
	Subjects     []string
	Dates        []string
	Sources      []string

	// Modified is the dcterms:modified timestamp. A malformed value is not
	// fatal: Modified stays nil and ModifiedRaw keeps the text.
	Modified    *time.Time
	ModifiedRaw string

	// CoverID is the manifest item id named by a legacy meta name="cover"
	// element, if any.
	CoverID string
}

// Language returns the document's default language, or "" if somehow unset.
func (m *Metadata) Language() string {
	if len(m.Languages) == 0 {
		return ""
	}
	return m.Languages[0]
}

// Title returns the first title's text, or "".
func (m *Metadata) Title() string {
	if len(m.Titles) == 0 {
		return ""
	}
	return m.Titles[0].Text
}

func buildMetadata(raw *opfMetadata, pkgLang, pkgDir string) (Metadata, error) {
	md := Metadata{}

	for _, id := range raw.Identifiers {
		if v := strings.TrimSpace(id.Value); v != "" {
			md.Identifiers = append(md.Identifiers, v)
		}
	}
	if len(md.Identifiers) == 0 {
		return md, fmt.Errorf("%w: metadata has no dc:identifier", ErrStructure)
	}

	for _, lang := range raw.Languages {
		if v := strings.TrimSpace(lang.Value); v != "" {
			md.Languages = append(md.Languages, v)
		}
	}
	if len(md.Languages) == 0 {
		return md, fmt.Errorf("%w: metadata has no dc:language", ErrStructure)
	}

	// The package element's xml:lang takes precedence over the first
	// dc:language as the inherited default for text runs.
	defaultLang := pkgLang
	if defaultLang == "" {
		defaultLang = md.Languages[0]
	}

	md.Titles = textRuns(raw.Titles, defaultLang)
	if len(md.Titles) == 0 {
		return md, fmt.Errorf("%w: metadata has no dc:title", ErrStructure)
	}

	md.Creators = textRuns(raw.Creators, defaultLang)
	md.Contributors = textRuns(raw.Contributors, defaultLang)
	md.Publishers = textRuns(raw.Publishers, defaultLang)
	md.Descriptions = textRuns(raw.Descriptions, defaultLang)
	md.Rights = textRuns(raw.Rights, defaultLang)
	md.Subjects = plainValues(raw.Subjects)
	md.Dates = plainValues(raw.Dates)
	md.Sources = plainValues(raw.Sources)

	for _, m := range raw.Metas {
		switch {
		case m.Property == "dcterms:modified":
			text := strings.TrimSpace(m.Value)
			if text == "" {
				continue
			}
			md.ModifiedRaw = text
			if t, err := time.Parse(time.RFC3339, text); err == nil {
				md.Modified = &t
			}
		case m.Name == "cover" && m.Content != "":
			md.CoverID = m.Content
		}
	}

	return md, nil
}

func textRuns(elems []opfDCElement, defaultLang string) []TextRun {
	var runs []TextRun
	for _, e := range elems {
		text := strings.TrimSpace(e.Value)
		if text == "" {
			continue
		}
		runs = append(runs, TextRun{
			Text: text,
			Dir:  textDirection(e.Dir),
			Lang: firstNonEmpty(e.Lang, defaultLang),
		})
	}
	return runs
}

func plainValues(elems []opfDCElement) []string {
	var values []string
	for _, e := range elems {
		if v := strings.TrimSpace(e.Value); v != "" {
			values = append(values, v)
		}
	}
	return values
}

// textDirection validates a dir attribute against the closed set;
// unrecognized values fall back to auto.
func textDirection(dir string) TextDirection {
	switch dir {
	case "ltr":
		return DirLTR
	case "rtl":
		return DirRTL
	default:
		return DirAuto
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
