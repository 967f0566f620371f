// Package catalog holds the fixed list of probe targets used by the
// diagnostic suite. Each target carries a free-form region tag used for
// per-region latency aggregation and for bufferbloat target selection.
package catalog

// Server is a single probe target.
type Server struct {
	// Host is a hostname or literal IPv4 address.
	Host string `json:"host" yaml:"host"`

	// Region is a free-form region tag ("NEAR", "EU", "USA", "Oceania").
	Region string `json:"region" yaml:"region"`

	// Reliable marks targets known to answer ICMP consistently. Advisory
	// only, nothing acts on it yet.
	Reliable bool `json:"reliable" yaml:"reliable"`
}

// Default returns the compiled-in probe target list. The slice is freshly
// allocated on every call so callers may reorder or trim it.
func Default() []Server {
	return []Server{
		{Host: "1.1.1.1", Region: "NEAR", Reliable: true},
		{Host: "8.8.8.8", Region: "NEAR", Reliable: true},
		{Host: "fra-de-ping.vultr.com", Region: "EU", Reliable: true},
		{Host: "ams-nl-ping.vultr.com", Region: "EU", Reliable: true},
		{Host: "lon-gb-ping.vultr.com", Region: "EU", Reliable: false},
		{Host: "nj-us-ping.vultr.com", Region: "USA", Reliable: true},
		{Host: "sjo-ca-us-ping.vultr.com", Region: "USA", Reliable: false},
		{Host: "syd-au-ping.vultr.com", Region: "Oceania", Reliable: true},
	}
}

// Regions returns the distinct region tags of servers in catalog order.
func Regions(servers []Server) []string {
	seen := map[string]struct{}{}
	out := []string{}
	for _, s := range servers {
		if _, ok := seen[s.Region]; ok {
			continue
		}
		seen[s.Region] = struct{}{}
		out = append(out, s.Region)
	}
	return out
}
