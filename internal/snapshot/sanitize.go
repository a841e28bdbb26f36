package snapshot

import "strings"

const imageBlobExt = ".tar"

var blobReplacer = strings.NewReplacer("/", "_", ":", "_")

// BlobName derives the archive filename for an image reference. The rule
// itself is the contract: restore re-derives the same name from the
// image_list.txt entry, so no mapping table is stored.
func BlobName(ref string) string {
	return blobReplacer.Replace(ref) + imageBlobExt
}
