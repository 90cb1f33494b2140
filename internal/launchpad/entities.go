package launchpad

import (
	"strings"
	"time"
)

// Build state values reported by Launchpad for charm recipe builds.
const (
	BuildStateSuccessful        = "Successfully built"
	BuildStateCurrentlyBuilding = "Currently building"
	BuildStateUploadingBuild    = "Uploading build"
	BuildStateNeedsBuilding     = "Needs building"
	BuildStateFailedToBuild     = "Failed to build"
	BuildStateFailedToUpload    = "Failed to upload"
)

// StoreUploadStatusUploaded marks a build whose artifact reached the store.
const StoreUploadStatusUploaded = "Uploaded"

// ProjectVCSGit is the value of a project's vcs field once configured for git.
const ProjectVCSGit = "Git"

// Person is a Launchpad person or team entry.
type Person struct {
	SelfLink    string `json:"self_link"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	IsTeam      bool   `json:"is_team"`
}

// Project is a Launchpad project entry.
type Project struct {
	SelfLink  string `json:"self_link"`
	WebLink   string `json:"web_link"`
	Name      string `json:"name"`
	Title     string `json:"title"`
	OwnerLink string `json:"owner_link"`
	VCS       string `json:"vcs"`
}

// GitRepository is a Launchpad git repository entry.
type GitRepository struct {
	SelfLink           string `json:"self_link"`
	WebLink            string `json:"web_link"`
	Name               string `json:"name"`
	OwnerLink          string `json:"owner_link"`
	TargetLink         string `json:"target_link"`
	GitHTTPSURL        string `json:"git_https_url"`
	TargetDefault      bool   `json:"target_default"`
	RefsCollectionLink string `json:"refs_collection_link"`
	CodeImportLink     string `json:"code_import_link"`
}

// GitRef is a reference (branch) within a git repository.
type GitRef struct {
	SelfLink   string `json:"self_link"`
	Path       string `json:"path"`
	CommitSHA1 string `json:"commit_sha1"`
}

// CodeImport mirrors an upstream repository into Launchpad.
type CodeImport struct {
	SelfLink          string `json:"self_link"`
	URL               string `json:"url"`
	ReviewStatus      string `json:"review_status"`
	GitRepositoryLink string `json:"git_repository_link"`
}

// CharmRecipe is a Launchpad charm recipe entry.
type CharmRecipe struct {
	SelfLink             string            `json:"self_link"`
	WebLink              string            `json:"web_link"`
	Name                 string            `json:"name"`
	OwnerLink            string            `json:"owner_link"`
	ProjectLink          string            `json:"project_link"`
	GitRefLink           string            `json:"git_ref_link"`
	GitRefPath           string            `json:"git_path"`
	AutoBuild            bool              `json:"auto_build"`
	AutoBuildChannels    map[string]string `json:"auto_build_channels"`
	BuildPath            string            `json:"build_path"`
	StoreChannels        []string          `json:"store_channels"`
	StoreName            string            `json:"store_name"`
	StoreUpload          bool              `json:"store_upload"`
	CanUploadToStore     bool              `json:"can_upload_to_store"`
	IsStale              bool              `json:"is_stale"`
	BuildsCollectionLink string            `json:"builds_collection_link"`
}

// Build is a charm recipe build entry.
type Build struct {
	SelfLink                string     `json:"self_link"`
	WebLink                 string     `json:"web_link"`
	BuildState              string     `json:"buildstate"`
	BuildLogURL             string     `json:"build_log_url"`
	DateBuilt               *time.Time `json:"datebuilt"`
	RevisionID              string     `json:"revision_id"`
	StoreUploadStatus       string     `json:"store_upload_status"`
	StoreUploadRevision     int        `json:"store_upload_revision"`
	StoreUploadErrorMessage string     `json:"store_upload_error_message"`
	RecipeLink              string     `json:"recipe_link"`
	DistroArchSeriesLink    string     `json:"distro_arch_series_link"`
	DistroSeriesLink        string     `json:"distro_series_link"`
	ArchitectureTag         string     `json:"arch_tag"`
}

// BuildRequest is returned when new builds are requested for a recipe.
type BuildRequest struct {
	SelfLink     string `json:"self_link"`
	WebLink      string `json:"web_link"`
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
}

// SeriesArch combines the distro series and architecture of a build, for
// example "jammy/amd64".
func (build Build) SeriesArch() string {
	return build.SeriesName() + "/" + build.Arch()
}

// Arch resolves the architecture tag, falling back to the distro arch series
// link when the entry omits the tag.
func (build Build) Arch() string {
	if len(build.ArchitectureTag) > 0 {
		return build.ArchitectureTag
	}
	return lastLinkSegment(build.DistroArchSeriesLink)
}

// SeriesName resolves the distro series name from the entry links.
func (build Build) SeriesName() string {
	return lastLinkSegment(build.DistroSeriesLink)
}

// ShortRevision returns the abbreviated git commit hash of the build.
func (build Build) ShortRevision() string {
	if len(build.RevisionID) > 7 {
		return build.RevisionID[:7]
	}
	return build.RevisionID
}

func lastLinkSegment(link string) string {
	trimmedLink := strings.TrimSuffix(link, "/")
	if separatorIndex := strings.LastIndex(trimmedLink, "/"); separatorIndex >= 0 {
		return trimmedLink[separatorIndex+1:]
	}
	return trimmedLink
}
