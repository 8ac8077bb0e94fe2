package registry

// Builtin is the stock catalogue shipped with the daemon.
func Builtin() *Registry {
	r, err := New(builtinTriggers)
	if err != nil {
		panic("builtin registry: " + err.Error())
	}
	return r
}

var builtinTriggers = []Trigger{
	{
		ID:          "gym-notes",
		Name:        "GYM Notes",
		Description: "Fitness tracking and workout logging",
		Color:       "from-red-500 to-orange-500",
		Keywords:    []string{"gym notes", "workout", "fitness tracking"},
		SubTriggers: []SubTrigger{
			{ID: "running", Name: "Running", Icon: "run", Keywords: []string{"run"}},
			{ID: "cycling", Name: "Cycling", Icon: "bike", Keywords: []string{"bike", "ride"}},
			{ID: "mobility", Name: "Mobility", Icon: "stretch", Keywords: []string{"stretch"}},
			{ID: "gym", Name: "Gym", Icon: "dumbbell", Keywords: []string{"weights", "lifting"}},
		},
	},
	{
		ID:          "studio-mode",
		Name:        "Studio Mode",
		Description: "Launch Drum session - Opens FL Studio, EZD3 & configures audio settings",
		Color:       "from-indigo-500 to-purple-500",
		Keywords:    []string{"studio mode", "fl studio", "music production"},
	},
	{
		ID:          "ritual-mode",
		Name:        "Launch Ritual Mode",
		Description: "Opens Obsidian, Cursor, activates AI agents",
		Color:       "from-purple-500 to-pink-500",
		Keywords:    []string{"launch ritual mode", "ritual mode", "start ritual"},
		Command:     "launch ritual mode",
	},
	{
		ID:          "explorer-mode",
		Name:        "Explorer Mode",
		Description: "Browser research tabs, voice logging setup",
		Color:       "from-blue-500 to-cyan-500",
		Keywords:    []string{"explorer mode", "start explorer", "research mode"},
	},
	{
		ID:          "focus-mode",
		Name:        "Focus Mode",
		Description: "DND mode, deep focus playlist, minimal setup",
		Color:       "from-green-500 to-emerald-500",
		Keywords:    []string{"focus mode", "deep focus", "concentration"},
		Command:     "activate focus mode",
	},
	{
		ID:          "archive-mission",
		Name:        "Archive Mission",
		Description: "Backup notes, close apps, reset workspace",
		Color:       "from-orange-500 to-red-500",
		Keywords:    []string{"archive mission", "end session", "backup and close"},
	},
	{
		ID:          "daily-note",
		Name:        "Daily Note",
		Description: "Create today's or tomorrow's daily note",
		Color:       "from-yellow-500 to-amber-500",
		Keywords:    []string{"daily note", "journal entry"},
		SubTriggers: []SubTrigger{
			{ID: "today", Name: "Today", Icon: "calendar"},
			{ID: "tomorrow", Name: "Tomorrow", Icon: "calendar-plus"},
		},
	},
}
