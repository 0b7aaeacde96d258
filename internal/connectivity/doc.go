// Package connectivity tracks network reachability. A Monitor deduplicates
// online and offline signals for its listeners; a Prober produces those
// signals by probing a URL.
package connectivity
