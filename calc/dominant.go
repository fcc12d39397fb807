package calc

import (
	"sort"

	"github.com/jing2uo/spt2db/model"
)

type DominantMark struct {
	Path     string
	Dominant bool
	Second   bool
}

type dayKey struct {
	category string
	day      string
}

// MarkDominant 同品种同一天内: 持仓量最大的是主力;
// 成交量超过当天最大成交量一半且不是主力的是次主力.
// 指数/主力连续序列和缺统计量的文件不参与, 但会被标成 false
func MarkDominant(files []model.FileRecord) []DominantMark {
	groups := make(map[dayKey][]int)
	marks := make([]DominantMark, len(files))

	for i := range files {
		marks[i].Path = files[i].Path
		f := &files[i]
		if f.Kind() != model.KindContract || f.OpenInterest == nil || f.VolumeSum == nil {
			continue
		}
		k := dayKey{f.Category, f.Day}
		groups[k] = append(groups[k], i)
	}

	for _, idx := range groups {
		// 并列时按路径取第一个, 结果可复现
		sort.Slice(idx, func(a, b int) bool { return files[idx[a]].Path < files[idx[b]].Path })

		dom := idx[0]
		maxVolume := *files[idx[0]].VolumeSum
		for _, i := range idx[1:] {
			if *files[i].OpenInterest > *files[dom].OpenInterest {
				dom = i
			}
			if *files[i].VolumeSum > maxVolume {
				maxVolume = *files[i].VolumeSum
			}
		}

		marks[dom].Dominant = true
		for _, i := range idx {
			if i != dom && *files[i].VolumeSum > maxVolume/2 {
				marks[i].Second = true
			}
		}
	}

	return marks
}
