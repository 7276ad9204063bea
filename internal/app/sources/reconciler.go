// Package sources computes the effect of adding, removing and updating media
// sources within a Jingle description. Every function returns a new value and
// leaves its inputs untouched.
package sources

import "github.com/dkeye/jingle/internal/domain"

// FilterForStream drops transport and payload details from every content
// and keeps only the sources associated with streamID. A source group
// survives iff its first listed ssrc survived.
func FilterForStream(desc domain.Description, streamID string) domain.Description {
	out := StripTransport(desc)
	for i := range out.Contents {
		md := out.Contents[i].Description
		if md == nil || md.DescType != domain.DescTypeRTP {
			continue
		}
		kept := make(map[uint32]struct{}, len(md.Sources))
		sources := md.Sources[:0]
		for _, src := range md.Sources {
			if src.StreamID() == streamID {
				sources = append(sources, src)
				kept[src.SSRC] = struct{}{}
			}
		}
		md.Sources = sources

		groups := md.SourceGroups[:0]
		for _, g := range md.SourceGroups {
			if len(g.Sources) == 0 {
				continue
			}
			if _, ok := kept[g.Sources[0]]; ok {
				groups = append(groups, g)
			}
		}
		md.SourceGroups = groups
	}
	return out
}

// StripTransport removes transport and payload details; those are re-derived
// by the peer connection and never re-signaled in source messages.
func StripTransport(desc domain.Description) domain.Description {
	out := desc.Clone()
	for i := range out.Contents {
		out.Contents[i].Transport = nil
		if md := out.Contents[i].Description; md != nil {
			md.Payloads = nil
		}
	}
	return out
}

// StripPrivateLabels removes the locally meaningful stream and track labels
// from every source.
func StripPrivateLabels(desc domain.Description) domain.Description {
	out := desc.Clone()
	for i := range out.Contents {
		md := out.Contents[i].Description
		if md == nil {
			continue
		}
		for j := range md.Sources {
			params := md.Sources[j].Parameters[:0]
			for _, p := range md.Sources[j].Parameters {
				if p.Key == domain.ParamMSLabel || p.Key == domain.ParamLabel {
					continue
				}
				params = append(params, p)
			}
			md.Sources[j].Parameters = params
		}
	}
	return out
}

// MergeSources appends the sources of every incoming content to the content
// of the same name in remote. Duplicates are not collapsed. Contents unknown
// to remote are ignored.
func MergeSources(remote, incoming domain.Description) domain.Description {
	out := remote.Clone()
	forEachMatch(&out, incoming, func(md *domain.MediaDescription, in *domain.MediaDescription) {
		md.Sources = append(md.Sources, domain.CloneSources(in.Sources)...)
		md.SourceGroups = pruneGroups(appendGroups(md.SourceGroups, in.SourceGroups), md.Sources)
	})
	return out
}

// RemoveSources removes, for every incoming ssrc, the first source in the
// matching content with that ssrc. Groups left referencing an absent ssrc
// are dropped.
func RemoveSources(remote, incoming domain.Description) domain.Description {
	out := remote.Clone()
	forEachMatch(&out, incoming, func(md *domain.MediaDescription, in *domain.MediaDescription) {
		for _, gone := range in.Sources {
			for j, src := range md.Sources {
				if src.SSRC == gone.SSRC {
					md.Sources = append(md.Sources[:j], md.Sources[j+1:]...)
					break
				}
			}
		}
		md.SourceGroups = pruneGroups(md.SourceGroups, md.Sources)
	})
	return out
}

// UpdateSources replaces the attributes of known sources in place and
// appends unknown ones. New groups are appended; dangling groups dropped.
func UpdateSources(remote, incoming domain.Description) domain.Description {
	out := remote.Clone()
	forEachMatch(&out, incoming, func(md *domain.MediaDescription, in *domain.MediaDescription) {
		for _, upd := range domain.CloneSources(in.Sources) {
			replaced := false
			for j := range md.Sources {
				if md.Sources[j].SSRC == upd.SSRC {
					md.Sources[j] = upd
					replaced = true
					break
				}
			}
			if !replaced {
				md.Sources = append(md.Sources, upd)
			}
		}
		md.SourceGroups = pruneGroups(appendGroups(md.SourceGroups, in.SourceGroups), md.Sources)
	})
	return out
}

func forEachMatch(out *domain.Description, incoming domain.Description, fn func(md, in *domain.MediaDescription)) {
	for i := range out.Contents {
		content := &out.Contents[i]
		for _, newContent := range incoming.Contents {
			if content.Name != newContent.Name || newContent.Description == nil {
				continue
			}
			if content.Description == nil {
				content.Description = &domain.MediaDescription{
					DescType: newContent.Description.DescType,
					Media:    newContent.Description.Media,
				}
			}
			fn(content.Description, newContent.Description)
		}
	}
}

func appendGroups(existing, incoming []domain.SourceGroup) []domain.SourceGroup {
	for _, g := range incoming {
		if containsGroup(existing, g) {
			continue
		}
		existing = append(existing, domain.SourceGroup{
			Semantics: g.Semantics,
			Sources:   append([]uint32(nil), g.Sources...),
		})
	}
	return existing
}

func containsGroup(groups []domain.SourceGroup, g domain.SourceGroup) bool {
	for _, have := range groups {
		if have.Semantics != g.Semantics || len(have.Sources) != len(g.Sources) {
			continue
		}
		same := true
		for i := range have.Sources {
			if have.Sources[i] != g.Sources[i] {
				same = false
				break
			}
		}
		if same {
			return true
		}
	}
	return false
}

func pruneGroups(groups []domain.SourceGroup, sources []domain.Source) []domain.SourceGroup {
	present := make(map[uint32]struct{}, len(sources))
	for _, s := range sources {
		present[s.SSRC] = struct{}{}
	}
	out := groups[:0]
	for _, g := range groups {
		complete := len(g.Sources) > 0
		for _, ssrc := range g.Sources {
			if _, ok := present[ssrc]; !ok {
				complete = false
				break
			}
		}
		if complete {
			out = append(out, g)
		}
	}
	return out
}
