package domain

import (
	"strconv"
	"strings"
)

// DescriptorKind identifies the stimulus payload carried by a Descriptor.
type DescriptorKind string

const (
	KindNumber DescriptorKind = "number"
	KindImage  DescriptorKind = "image"
	KindChoice DescriptorKind = "choice"
)

// Descriptor identifies the stimulus of one trial. It is treated as immutable
// once it has been enqueued.
type Descriptor struct {
	Kind   DescriptorKind `json:"kind"`
	Number int            `json:"number,omitempty"`
	Image  string         `json:"image,omitempty"`
	// Item names the stimulus family for image and choice trials.
	Item string `json:"item,omitempty"`
	// Images holds the candidate images of a choice trial keyed by the input
	// that selects them.
	Images map[Input]string `json:"images,omitempty"`
}

// NumberTrial returns a number stimulus.
func NumberTrial(n int) Descriptor {
	return Descriptor{Kind: KindNumber, Number: n}
}

// ImageTrial returns a single-image stimulus. The item is the second path
// segment, e.g. "altoid" for "stim/altoid/e1_s2.jpg".
func ImageTrial(path string) Descriptor {
	return Descriptor{Kind: KindImage, Image: path, Item: itemFromPath(path)}
}

// ChoiceTrial returns a multi-image stimulus where each input selects one image.
func ChoiceTrial(item string, images map[Input]string) Descriptor {
	copied := make(map[Input]string, len(images))
	for k, v := range images {
		copied[k] = v
	}
	return Descriptor{Kind: KindChoice, Item: item, Images: copied}
}

// String returns the stimulus reference recorded in results.
func (d Descriptor) String() string {
	switch d.Kind {
	case KindNumber:
		return strconv.Itoa(d.Number)
	case KindImage:
		return d.Image
	default:
		return d.Item
	}
}

func itemFromPath(path string) string {
	parts := strings.Split(path, "/")
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}
