package canon

import "maps"

func protestantRules() map[string]OrdinalRule {
	return map[string]OrdinalRule{
		"samuel":        {Max: 2},
		"kings":         {Max: 2},
		"chronicles":    {Max: 2},
		"corinthians":   {Max: 2},
		"thessalonians": {Max: 2},
		"timothy":       {Max: 2},
		"peter":         {Max: 2},
		"john":          {Max: 3, Optional: true},
	}
}

func catholicRules() map[string]OrdinalRule {
	r := protestantRules()
	maps.Copy(r, map[string]OrdinalRule{"maccabees": {Max: 2}})
	return r
}
