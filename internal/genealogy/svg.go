package genealogy

import (
	"encoding/xml"
	"strconv"
	"strings"
)

const svgPadding = 16

// SVG renders the layout as a standalone SVG document.
func (l *Layout) SVG() string {
	g := l.Geometry
	w := l.Width + 2*svgPadding
	h := l.Height + 2*svgPadding

	var b strings.Builder
	b.WriteString(`<svg xmlns="http://www.w3.org/2000/svg" width="` + num(w) + `" height="` + num(h) +
		`" viewBox="0 0 ` + num(w) + ` ` + num(h) + `">` + "\n")
	b.WriteString(`<g transform="translate(` + strconv.Itoa(svgPadding) + ` ` + strconv.Itoa(svgPadding) + `)">` + "\n")

	for _, e := range l.Edges {
		class := "edge"
		if e.Slot == SlotSecondary {
			class = "edge edge-secondary"
		}
		b.WriteString(`<path class="` + class + `" d="` + e.Path + `" fill="none" stroke="#94a3b8" stroke-width="1.5"/>` + "\n")
	}

	for _, c := range l.Cards {
		fill := "#ffffff"
		if c.PartnerID != "" {
			fill = "#f8fafc"
		}
		b.WriteString(`<g class="card" data-member="` + escape(c.MemberID) + `">`)
		b.WriteString(`<rect x="` + num(c.X) + `" y="` + num(c.Y) + `" width="` + num(g.CardWidth) +
			`" height="` + num(g.CardHeight) + `" rx="8" fill="` + fill + `" stroke="#cbd5e1"/>`)
		b.WriteString(`<text x="` + num(c.X+g.CardWidth/2) + `" y="` + num(c.Y+g.CardHeight/2) +
			`" text-anchor="middle" dominant-baseline="middle" font-family="sans-serif" font-size="13">` +
			escape(c.Name) + `</text>`)
		b.WriteString("</g>\n")
	}

	b.WriteString("</g>\n</svg>\n")
	return b.String()
}

func escape(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}
