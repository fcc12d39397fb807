package model

import "sync"

type ViewID string

var (
	viewRegistry   []ViewID
	viewRegistryMu sync.Mutex
)

func DefineView(name string) ViewID {
	viewRegistryMu.Lock()
	defer viewRegistryMu.Unlock()

	id := ViewID(name)
	viewRegistry = append(viewRegistry, id)
	return id
}

func AllViews() []ViewID {
	viewRegistryMu.Lock()
	defer viewRegistryMu.Unlock()

	result := make([]ViewID, len(viewRegistry))
	copy(result, viewRegistry)
	return result
}

// --- 定义视图 ---

var (
	ViewFilesValid  = DefineView("v_files_valid")
	ViewFilesDf     = DefineView("v_files_df_valid")
	ViewFilesMain   = DefineView("v_files_main")
	ViewFilesSub    = DefineView("v_files_sub_main")
	ViewFilesWait   = DefineView("v_files_wait_import")
	ViewSplitsValid = DefineView("v_splits_valid")
	ViewSplitsMain  = DefineView("v_splits_main")
	ViewSplitsSub   = DefineView("v_splits_sub_main")
)

// 视图排除的标签
var (
	InvalidTags   = []string{TagInvalidDay, TagTooSmall, TagDupTime, TagTimeNoMs}
	DfInvalidTags = []string{TagTooSmall}
	// 合成序列不参与主力/次主力
	SyntheticSubIDs = []string{SubIDIndex, SubIDDominant}
)
