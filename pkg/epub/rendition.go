package epub

import "strings"

// Rendition carries the publication-level layout hints derived from
// rendition:* meta elements. Unrecognized values are ignored and the
// defaults retained.
type Rendition struct {
	Layout      string // "reflowable" or "pre-paginated"
	Orientation string // "auto", "landscape", "portrait"
	Spread      string // "auto", "none", "landscape", "both"
	Flow        string // "auto", "paginated", "scrolled-doc", "scrolled-continuous"

	// PageSpreadPerEntry is set when any spine entry declares an explicit
	// page-spread placement property.
	PageSpreadPerEntry bool
}

var renditionValues = map[string]map[string]bool{
	"rendition:layout":      {"reflowable": true, "pre-paginated": true},
	"rendition:orientation": {"auto": true, "landscape": true, "portrait": true},
	"rendition:spread":      {"auto": true, "none": true, "landscape": true, "both": true},
	"rendition:flow":        {"auto": true, "paginated": true, "scrolled-doc": true, "scrolled-continuous": true},
}

func buildRendition(raw *opfMetadata, spine *Spine) Rendition {
	r := Rendition{
		Layout:      "reflowable",
		Orientation: "auto",
		Spread:      "auto",
		Flow:        "auto",
	}

	for _, m := range raw.Metas {
		allowed, ok := renditionValues[m.Property]
		if !ok {
			continue
		}
		value := strings.TrimSpace(m.Value)
		if !allowed[value] {
			continue
		}
		switch m.Property {
		case "rendition:layout":
			r.Layout = value
		case "rendition:orientation":
			r.Orientation = value
		case "rendition:spread":
			r.Spread = value
		case "rendition:flow":
			r.Flow = value
		}
	}

	for _, entry := range spine.Entries {
		for _, prop := range entry.Properties {
			switch prop {
			case "page-spread-left", "page-spread-right", "page-spread-center",
				"rendition:page-spread-left", "rendition:page-spread-right", "rendition:page-spread-center":
				r.PageSpreadPerEntry = true
			}
		}
	}

	return r
}
