package engine

import (
	"mercator-hq/sentinel/pkg/guardrail"
	"mercator-hq/sentinel/pkg/guardrail/ruletable"
)

var genericMessages = map[guardrail.Action]string{
	guardrail.ActionRedirect: "This request is better handled elsewhere.",
	guardrail.ActionRestrict: "This request needs your confirmation before it can continue.",
	guardrail.ActionBlock:    "This request can't be completed.",
}

// GenericMessage returns the fallback user message for action. It is empty
// for allow.
func GenericMessage(action guardrail.Action) string {
	return genericMessages[action]
}

// BuildExplanation returns the user message and alternatives for the final
// action. Allow produces neither.
func BuildExplanation(final guardrail.Action, primary *guardrail.DomainResult, table *ruletable.Table) (string, []string) {
	if final == guardrail.ActionAllow || primary == nil {
		return "", nil
	}

	message := primary.Explanation
	alternatives := cloneStrings(primary.Alternatives)

	var def ruletable.Default
	var hasDefault bool
	if table != nil {
		def, hasDefault = table.Default(primary.Domain, final)
	}

	if message == "" && hasDefault && def.Message != "" {
		message = renderDefault(def.Message, primary.Domain, final)
	}
	if message == "" {
		message = GenericMessage(final)
	}
	if len(alternatives) == 0 && hasDefault {
		alternatives = cloneStrings(def.Alternatives)
	}
	if alternatives == nil {
		alternatives = []string{}
	}
	return message, alternatives
}
