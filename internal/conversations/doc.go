// Package conversations provides the narrow conversation/message surface the
// analysis core needs: lookup for payload preparation and evidence checks,
// rename for applying title suggestions, and the meta-content heuristic that
// keeps project-management chatter about distill itself out of the derived
// stores.
package conversations
