package genealogy

import (
	"strconv"

	"github.com/rebolloluis/family-tree/internal/models"
)

// Geometry is the card size and spacing used to position cards and connectors.
type Geometry struct {
	CardWidth  float64 `json:"card_width"`
	CardHeight float64 `json:"card_height"`
	GapX       float64 `json:"gap_x"`
	GapY       float64 `json:"gap_y"`
}

func DefaultGeometry() Geometry {
	return Geometry{CardWidth: 140, CardHeight: 88, GapX: 32, GapY: 72}
}

func (g Geometry) orDefault() Geometry {
	d := DefaultGeometry()
	if g == (Geometry{}) {
		return d
	}
	if g.CardWidth <= 0 {
		g.CardWidth = d.CardWidth
	}
	if g.CardHeight <= 0 {
		g.CardHeight = d.CardHeight
	}
	if g.GapX < 0 {
		g.GapX = d.GapX
	}
	if g.GapY < 0 {
		g.GapY = d.GapY
	}
	return g
}

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Node is one generation entry: a member and the spouses attached to it.
type Node struct {
	Member  *models.Member   `json:"member"`
	Spouses []*models.Member `json:"spouses"`
}

// Card is a positioned member box. Spouse cards carry their partner's id.
type Card struct {
	MemberID   string  `json:"member_id"`
	Name       string  `json:"name"`
	Generation int     `json:"generation"`
	PartnerID  string  `json:"partner_id,omitempty"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
}

// Edge is the connector from one parent slot of Child to that parent.
type Edge struct {
	ParentID string `json:"parent_id"`
	ChildID  string `json:"child_id"`
	Slot     Slot   `json:"slot"`
	From     Point  `json:"from"`
	To       Point  `json:"to"`
	Path     string `json:"path"`
}

type Layout struct {
	Geometry    Geometry `json:"geometry"`
	Generations [][]Node `json:"generations"`
	Cards       []Card   `json:"cards"`
	Edges       []Edge   `json:"edges"`
	Width       float64  `json:"width"`
	Height      float64  `json:"height"`
}

// BuildGenerations buckets members into generations. Generation 0 holds the
// members with neither parent nor spouse links; generation k+1 holds the
// unplaced non-spouse members with a parent in generation k. Spouses are
// attached to their partner's node. Members that never connect to a root are
// left out, and every member is placed at most once.
func (idx *Index) BuildGenerations() [][]Node {
	placed := make(map[string]bool, len(idx.members))
	var current []*models.Member
	for _, m := range idx.members {
		if SlotsOf(m).Empty() && !IsSpouse(m) {
			current = append(current, m)
		}
	}

	var gens [][]Node
	for len(current) > 0 {
		row := make([]Node, 0, len(current))
		inRow := make(map[string]bool, len(current))
		for _, m := range current {
			placed[m.ID] = true
			inRow[m.ID] = true
			row = append(row, Node{Member: m, Spouses: idx.SpousesOf(m.ID)})
		}
		gens = append(gens, row)

		var next []*models.Member
		for _, m := range idx.members {
			if placed[m.ID] || IsSpouse(m) {
				continue
			}
			for _, pid := range SlotsOf(m).IDs() {
				if inRow[pid] {
					next = append(next, m)
					break
				}
			}
		}
		current = next
	}
	return gens
}

// BuildLayout positions the generations with geometry g and draws one
// connector per filled parent slot whose two ends are on the canvas.
func (idx *Index) BuildLayout(g Geometry) *Layout {
	g = g.orDefault()
	gens := idx.BuildGenerations()
	l := &Layout{
		Geometry:    g,
		Generations: gens,
		Cards:       []Card{},
		Edges:       []Edge{},
	}
	if len(gens) == 0 {
		return l
	}

	rowWidth := func(row []Node) float64 {
		n := 0
		for _, node := range row {
			n += 1 + len(node.Spouses)
		}
		if n == 0 {
			return 0
		}
		return float64(n)*g.CardWidth + float64(n-1)*g.GapX
	}
	for _, row := range gens {
		if w := rowWidth(row); w > l.Width {
			l.Width = w
		}
	}
	l.Height = float64(len(gens))*g.CardHeight + float64(len(gens)-1)*g.GapY

	pos := make(map[string]Point)
	for gen, row := range gens {
		x := (l.Width - rowWidth(row)) / 2
		y := float64(gen) * (g.CardHeight + g.GapY)
		place := func(m *models.Member, partner string) {
			l.Cards = append(l.Cards, Card{MemberID: m.ID, Name: m.Name, Generation: gen, PartnerID: partner, X: x, Y: y})
			pos[m.ID] = Point{X: x, Y: y}
			x += g.CardWidth + g.GapX
		}
		for _, node := range row {
			place(node.Member, "")
			for _, sp := range node.Spouses {
				place(sp, node.Member.ID)
			}
		}
	}

	for _, m := range idx.members {
		child, ok := pos[m.ID]
		if !ok {
			continue
		}
		slots := SlotsOf(m)
		for _, slot := range []Slot{SlotPrimary, SlotSecondary} {
			pid := slots.Get(slot)
			if pid == nil {
				continue
			}
			if slot == SlotSecondary && slots.Primary != nil && *slots.Primary == *pid {
				continue
			}
			parent, ok := pos[*pid]
			if !ok {
				continue
			}
			from := Point{X: parent.X + g.CardWidth/2, Y: parent.Y + g.CardHeight}
			to := Point{X: child.X + g.CardWidth/2, Y: child.Y}
			l.Edges = append(l.Edges, Edge{
				ParentID: *pid,
				ChildID:  m.ID,
				Slot:     slot,
				From:     from,
				To:       to,
				Path:     connectorPath(from, to),
			})
		}
	}
	return l
}

// connectorPath is a cubic Bezier leaving the parent and entering the child
// vertically, bending at the midpoint height.
func connectorPath(from, to Point) string {
	my := (from.Y + to.Y) / 2
	return "M " + num(from.X) + " " + num(from.Y) +
		" C " + num(from.X) + " " + num(my) +
		", " + num(to.X) + " " + num(my) +
		", " + num(to.X) + " " + num(to.Y)
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// BuildGenerations buckets members into generations.
func BuildGenerations(members []models.Member) [][]Node {
	return NewIndex(members).BuildGenerations()
}

// BuildLayout lays out members with geometry g.
func BuildLayout(members []models.Member, g Geometry) *Layout {
	return NewIndex(members).BuildLayout(g)
}

// Rendered reports whether id has a card in the layout.
func (l *Layout) Rendered(id string) bool {
	for _, c := range l.Cards {
		if c.MemberID == id {
			return true
		}
	}
	return false
}
