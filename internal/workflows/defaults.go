package workflows

const defaultBatchLimit = 500

func resolveLimit(limit int) int {
	if limit <= 0 {
		return defaultBatchLimit
	}
	return limit
}

func resolveSource(source string) string {
	if source == "" {
		return "all"
	}
	return source
}
