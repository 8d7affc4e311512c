package engine

import (
	"cisline/internal/audit"
	"cisline/internal/domain"
)

func organizationSnapshot(o domain.Organization) audit.Snapshot {
	return audit.Snapshot{"name": o.Name, "description": o.Description}
}

func settingsSnapshot(s *domain.Settings) audit.Snapshot {
	if s == nil {
		return audit.Snapshot{}
	}
	return audit.Snapshot{
		"upload_directory":   s.UploadDirectory,
		"download_directory": s.DownloadDirectory,
		"artifact_directory": s.ArtifactDirectory,
	}
}

func profileSnapshot(p domain.Profile) audit.Snapshot {
	s := audit.Snapshot{"name": p.Name, "description": p.Description}
	if p.User != nil {
		s["role"] = string(p.User.Role)
		s["work_function"] = p.User.WorkFunction
		s["nickname"] = p.User.Nickname
	}
	return s
}

func taskSnapshot(t domain.Task) audit.Snapshot {
	return audit.Snapshot{
		"name":              t.Name,
		"description":       t.Description,
		"expected_evidence": t.ExpectedEvidence,
		"status":            string(t.Status),
		"start_at":          deref(t.StartAt),
		"end_at":            deref(t.EndAt),
	}
}

func artifactSnapshot(a domain.Artifact) audit.Snapshot {
	return audit.Snapshot{"name": a.Name, "description": a.Description}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
