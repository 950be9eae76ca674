// Package ruletable provides versioned guardrail rule tables.
//
// A rule table groups rules by domain and carries the keyword lists used
// for domain detection, default (domain, action) messages, the name of the
// cross-cutting domain and the table-level hard constraints.
//
// # YAML Format
//
//	version: 3
//	cross_cutting_domain: system
//	hard_constraints:
//	  no_autonomy_under_block: true
//	  no_autonomy_under_restrict: true
//	domains:
//	  - name: medical
//	    keywords:
//	      high: [overdose]
//	      medium: [dosage, medication]
//	    defaults:
//	      restrict:
//	        message: Please check with a clinician.
//	    rules:
//	      - id: medical-dose-change
//	        action: restrict
//	        conditions:
//	          - field: intent.raw_text
//	            operator: matches
//	            value: "(change|increase).{0,30}dose"
//
// Rules are active unless they set active: false. Both hard constraints
// default to true when omitted.
//
// # Sources
//
// FileSource reads a YAML file, MemorySource serves a table built in code
// and DefaultSource serves the built-in table embedded in this package.
// A Watcher reports debounced changes to a table file so callers can reload.
package ruletable
