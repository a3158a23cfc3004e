package geo

import (
	"fmt"
	"math"
	"sort"

	"github.com/golang/geo/s2"
	"github.com/paulmach/orb"

	"github.com/banshee-data/anomaly.report/internal/traffic"
)

// maxUnionCells bounds the number of finest-level cells a mixed-level union
// may expand into.
const maxUnionCells = 1 << 16

// vertexScale quantizes vertex coordinates so shared corners of adjacent
// cells compare equal.
const vertexScale = 1e9

type vertexKey struct {
	lon, lat int64
}

func keyOf(p orb.Point) vertexKey {
	return vertexKey{
		lon: int64(math.Round(p[0] * vertexScale)),
		lat: int64(math.Round(p[1] * vertexScale)),
	}
}

func (k vertexKey) less(o vertexKey) bool {
	if k.lon != o.lon {
		return k.lon < o.lon
	}
	return k.lat < o.lat
}

type edgeKey struct {
	from, to vertexKey
}

// UnionCells merges edge-connected cells into one polygon. Cells at
// different levels are expanded to the finest level present. The result
// has one counter-clockwise shell followed by clockwise holes. Cells that
// touch only at corners, or fall apart into several pieces, return
// ErrNotSinglePolygon.
func (g Grid) UnionCells(ids []traffic.CellID) (orb.Polygon, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: no cells", ErrNotSinglePolygon)
	}
	cells, err := normalizeLevels(ids)
	if err != nil {
		return nil, err
	}
	if !edgeConnected(cells) {
		return nil, fmt.Errorf("%w: %d cells are not edge connected", ErrNotSinglePolygon, len(cells))
	}

	// Every cell contributes its four counter-clockwise edges; an edge shared
	// with a neighbour appears once in each direction and cancels out.
	points := make(map[vertexKey]orb.Point)
	edges := make(map[edgeKey]struct{})
	for _, c := range sortedCells(cells) {
		v := vertices(c)
		for k := 0; k < 4; k++ {
			a, b := keyOf(v[k]), keyOf(v[(k+1)%4])
			if _, ok := points[a]; !ok {
				points[a] = v[k]
			}
			if _, ok := edges[edgeKey{b, a}]; ok {
				delete(edges, edgeKey{b, a})
				continue
			}
			edges[edgeKey{a, b}] = struct{}{}
		}
	}

	rings, err := traceRings(edges, points)
	if err != nil {
		return nil, err
	}

	var shell orb.Ring
	var holes []orb.Ring
	for _, r := range rings {
		if r.Orientation() == orb.CCW {
			if shell != nil {
				return nil, fmt.Errorf("%w: more than one outer ring", ErrNotSinglePolygon)
			}
			shell = r
			continue
		}
		holes = append(holes, r)
	}
	if shell == nil {
		return nil, fmt.Errorf("%w: no outer ring", ErrNotSinglePolygon)
	}
	return append(orb.Polygon{shell}, holes...), nil
}

func normalizeLevels(ids []traffic.CellID) (map[s2.CellID]struct{}, error) {
	finest := 0
	parsed := make([]s2.CellID, 0, len(ids))
	for _, id := range ids {
		c, err := toS2(id)
		if err != nil {
			return nil, err
		}
		if c.Level() > finest {
			finest = c.Level()
		}
		parsed = append(parsed, c)
	}

	cells := make(map[s2.CellID]struct{}, len(parsed))
	for _, c := range parsed {
		if c.Level() == finest {
			cells[c] = struct{}{}
			continue
		}
		if n := 1 << (2 * (finest - c.Level())); n+len(cells) > maxUnionCells {
			return nil, fmt.Errorf("%w: cell %s expands to %d cells at level %d",
				traffic.ErrInvalidArgument, traffic.CellID(c), n, finest)
		}
		for child := c.ChildBeginAtLevel(finest); child != c.ChildEndAtLevel(finest); child = child.Next() {
			cells[child] = struct{}{}
		}
	}
	if len(cells) > maxUnionCells {
		return nil, fmt.Errorf("%w: union of %d cells exceeds %d", traffic.ErrInvalidArgument, len(cells), maxUnionCells)
	}
	return cells, nil
}

func sortedCells(cells map[s2.CellID]struct{}) []s2.CellID {
	out := make([]s2.CellID, 0, len(cells))
	for c := range cells {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func edgeConnected(cells map[s2.CellID]struct{}) bool {
	var start s2.CellID
	for c := range cells {
		start = c
		break
	}
	seen := map[s2.CellID]bool{start: true}
	queue := []s2.CellID{start}
	for len(queue) > 0 {
		c := queue[0]
		queue = queue[1:]
		for _, n := range c.EdgeNeighbors() {
			if _, ok := cells[n]; ok && !seen[n] {
				seen[n] = true
				queue = append(queue, n)
			}
		}
	}
	return len(seen) == len(cells)
}

// traceRings walks the boundary edges into closed rings. Where a vertex
// has several outgoing edges the walk takes the sharpest left turn, which
// splits pinched boundaries into separate simple rings.
func traceRings(edges map[edgeKey]struct{}, points map[vertexKey]orb.Point) ([]orb.Ring, error) {
	out := make(map[vertexKey][]vertexKey)
	for e := range edges {
		out[e.from] = append(out[e.from], e.to)
	}
	for k := range out {
		targets := out[k]
		sort.Slice(targets, func(i, j int) bool { return targets[i].less(targets[j]) })
	}

	var rings []orb.Ring
	for len(edges) > 0 {
		start := firstEdge(edges)
		ring := orb.Ring{points[start.from]}
		prev, cur := start.from, start.to
		delete(edges, start)

		for cur != start.from {
			ring = append(ring, points[cur])
			next, ok := pickNext(prev, cur, out[cur], edges, points)
			if !ok {
				return nil, fmt.Errorf("%w: open boundary at %v", ErrNotSinglePolygon, points[cur])
			}
			delete(edges, edgeKey{cur, next})
			prev, cur = cur, next
		}
		ring = append(ring, ring[0])
		rings = append(rings, ring)
	}
	return rings, nil
}

func firstEdge(edges map[edgeKey]struct{}) edgeKey {
	var best edgeKey
	first := true
	for e := range edges {
		if first || e.from.less(best.from) || (e.from == best.from && e.to.less(best.to)) {
			best = e
			first = false
		}
	}
	return best
}

func pickNext(prev, cur vertexKey, candidates []vertexKey, edges map[edgeKey]struct{}, points map[vertexKey]orb.Point) (vertexKey, bool) {
	a, b := points[prev], points[cur]
	inX, inY := b[0]-a[0], b[1]-a[1]

	var best vertexKey
	bestTurn := math.Inf(-1)
	found := false
	for _, c := range candidates {
		if _, ok := edges[edgeKey{cur, c}]; !ok {
			continue
		}
		p := points[c]
		outX, outY := p[0]-b[0], p[1]-b[1]
		turn := math.Atan2(inX*outY-inY*outX, inX*outX+inY*outY)
		if turn > bestTurn {
			best, bestTurn, found = c, turn, true
		}
	}
	return best, found
}
