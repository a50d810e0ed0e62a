package comments

// ParseMentions extracts person ids written as @<digits> from comment text.
// It is the fallback used when the client sends no explicit mention list.
// Duplicates are collapsed, first occurrence order is kept.
func ParseMentions(content string) []int64 {
	var ids []int64
	seen := map[int64]bool{}
	for i := 0; i < len(content); i++ {
		if content[i] != '@' {
			continue
		}
		j := i + 1
		var id int64
		for j < len(content) && content[j] >= '0' && content[j] <= '9' {
			id = id*10 + int64(content[j]-'0')
			j++
		}
		if j > i+1 && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
		i = j - 1
	}
	return ids
}
