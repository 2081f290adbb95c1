package pipeline

import (
	"mime"
	"net/url"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/gabriel-vasile/mimetype"
	"github.com/vincent-petithory/dataurl"
)

// resolveImages rewrites every local image reference. In base64 mode the
// attachment is inlined as a data URI; in path-rewrite mode the src is
// pointed at the remote image path and the attachment is recorded as a
// pending upload. Unresolvable resources keep their original src.
func (p *Pipeline) resolveImages(doc *goquery.Document, result *Result) {
	inline := p.profile.Base64Images
	rewrite := !inline && p.profile.ExportFoundry
	if !inline && !rewrite {
		return
	}
	if p.resources == nil {
		if doc.Find("img[src]").Length() > 0 {
			result.AddWarning(stageImages, "no resource loader configured, images left untouched", "")
		}
		return
	}

	uploaded := make(map[string]string) // vault path -> remote path

	doc.Find("img[src]").Each(func(_ int, s *goquery.Selection) {
		src, _ := s.Attr("src")
		ref, ok := localRef(src)
		if !ok {
			return
		}

		if inline {
			data, err := p.resources.Resource(ref)
			if err != nil {
				result.Stats.ImagesUnresolved++
				result.AddWarning(stageImages, "image not found, src left untouched", src)
				return
			}
			s.SetAttr("src", dataurl.New(data, imageMIME(ref, data)).String())
			result.Stats.ImagesInlined++
			return
		}

		vaultPath, ok := p.resources.ResolveResource(ref)
		if !ok {
			result.Stats.ImagesUnresolved++
			result.AddWarning(stageImages, "image not found, src left untouched", src)
			return
		}
		remote, seen := uploaded[vaultPath]
		if !seen {
			remote = path.Join(p.profile.Destination.ImagePath, path.Base(vaultPath))
			uploaded[vaultPath] = remote
			result.PendingUploads = append(result.PendingUploads, Upload{
				VaultPath:  vaultPath,
				RemotePath: remote,
			})
		}
		s.SetAttr("src", remote)
		result.Stats.ImagesRewritten++
	})
}

// localRef extracts the vault reference from an img src. Remote and
// already-inlined sources return ok=false.
func localRef(src string) (string, bool) {
	src = strings.TrimSpace(src)
	if src == "" {
		return "", false
	}
	lower := strings.ToLower(src)
	for _, prefix := range []string{"http://", "https://", "data:", "//", "mailto:"} {
		if strings.HasPrefix(lower, prefix) {
			return "", false
		}
	}
	// Hosts hand out app://local/<path> style URLs for vault files.
	if strings.HasPrefix(lower, "app://local/") {
		src = src[len("app://local/"):]
	} else if strings.Contains(lower, "://") {
		return "", false
	}
	if unescaped, err := url.PathUnescape(src); err == nil {
		src = unescaped
	}
	// Strip query noise hosts append for cache busting.
	if i := strings.IndexByte(src, '?'); i >= 0 {
		src = src[:i]
	}
	if src == "" {
		return "", false
	}
	return src, true
}

// imageMIME resolves an image media type from the file extension, falling
// back to content sniffing for extensionless attachments.
func imageMIME(ref string, data []byte) string {
	if mt := mime.TypeByExtension(path.Ext(ref)); mt != "" {
		return mt
	}
	return mimetype.Detect(data).String()
}
