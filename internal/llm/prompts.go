package llm

import "finevo/internal/model"

// SystemPrompt is the default instruction set when no category-specific
// prompt applies. Adapted from llm_adapter.py/llm_adapter_local.py's
// PROMPT_BY_CATEGORY/SYSTEM_PROMPT, retargeted from Python to Go source.
const SystemPrompt = `You are a tool-synthesis engine for a financial analytics system.
Generate a single Go source file defining exactly one function:

    func Run(args map[string]interface{}) (interface{}, error)

Rules:
- Use only the Go standard library. No external imports.
- No file, network, process, or environment access unless explicitly asked for a fetch tool.
- Read inputs from args by key; return an error for missing or wrong-typed inputs.
- Return exactly the output type requested, nothing wrapped in extra structure.
- Keep the function self-contained and deterministic given its inputs.`

const fetchPrompt = SystemPrompt + `

This is a FETCH tool: it may read from args a data-provider handle passed
under the key "__provider" implementing historical/quote/financial lookups,
and may take symbol/start/end/interval arguments. It must not call out to
any network package directly; all external data flows through the provider.`

const calculationPrompt = SystemPrompt + `

This is a CALCULATION tool: pure numeric computation over its inputs
(price series, periods, thresholds). No data access of any kind.`

const compositePrompt = SystemPrompt + `

This is a COMPOSITE tool: it combines the outputs of other calculations
into a signal, score, or decision (boolean, dict, or numeric). No data
access of any kind.`

// PromptByCategory selects the system prompt for a tool category.
var PromptByCategory = map[string]string{
	"fetch":       fetchPrompt,
	"calculation": calculationPrompt,
	"composite":   compositePrompt,
}

// FormatOutputConstraint renders a contract's output type as an
// instruction appended to the user prompt. Adapted from
// llm_adapter_local.py's _format_output_constraint.
func FormatOutputConstraint(c model.Contract) string {
	switch c.OutputType {
	case model.OutputNumeric:
		return "Return a single float64. Do NOT return a map/slice."
	case model.OutputDict:
		if len(c.RequiredKeys) > 0 {
			return "Return a map[string]interface{} with keys: " + joinKeys(c.RequiredKeys) + ". Do NOT return a dataframe/slice."
		}
		return "Return a map[string]interface{}. Do NOT return a dataframe/slice."
	case model.OutputBoolean:
		return "Return a bool. Do NOT return 0/1 or a string."
	case model.OutputDataFrame:
		if len(c.RequiredKeys) > 0 {
			return "Return a map[string][]float64 with columns: " + joinKeys(c.RequiredKeys) + "."
		}
		return "Return a map[string][]float64."
	case model.OutputList:
		return "Return a []interface{}. Do NOT return a map/dataframe."
	default:
		return ""
	}
}

func joinKeys(keys []string) string {
	out := ""
	for i, k := range keys {
		if i > 0 {
			out += ", "
		}
		out += k
	}
	return out
}
