package dispatch

import "strings"

// composer accumulates advisory notices in presentation order: inline
// notices carried on the adapter's result first, then the descriptor's
// static notice, then dynamic notices produced during dispatch. Identical
// text is never repeated.
type composer struct {
	inline  []string
	static_ []string
	dynamic []string
}

func (c *composer) addInline(notices ...string)  { c.inline = append(c.inline, notices...) }
func (c *composer) addStatic(notice string)      { c.static_ = append(c.static_, notice) }
func (c *composer) addDynamic(notices ...string) { c.dynamic = append(c.dynamic, notices...) }

func (c *composer) compose() []string {
	var out []string
	seen := map[string]bool{}
	for _, group := range [][]string{c.inline, c.static_, c.dynamic} {
		for _, n := range group {
			n = strings.TrimSpace(n)
			if n == "" || seen[n] {
				continue
			}
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}
