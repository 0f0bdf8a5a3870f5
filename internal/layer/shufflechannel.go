package layer

import (
	"fmt"

	"github.com/born-ml/lite/internal/option"
	"github.com/born-ml/lite/internal/serialization"
	"github.com/born-ml/lite/internal/tensor"
)

// ShuffleChannel interleaves channel groups: channel j of group i moves to
// position j*group + i.
type ShuffleChannel struct {
	Base
	Group int
}

// NewShuffleChannel creates a ShuffleChannel layer.
func NewShuffleChannel() *ShuffleChannel {
	return &ShuffleChannel{Base: base(KindShuffleChannel, true, false, false, true)}
}

// LoadParam implements Layer.
func (l *ShuffleChannel) LoadParam(pd *serialization.ParamDict) error {
	l.Group = pd.GetInt(0, 1)
	return nil
}

// Forward implements Forwarder.
func (l *ShuffleChannel) Forward(bottom tensor.Mat, opt option.Option) (tensor.Mat, error) {
	if l.Group <= 0 || bottom.C%l.Group != 0 {
		return tensor.Mat{}, fmt.Errorf("%w: %d channels cannot be shuffled in %d groups", ErrInvalidParam, bottom.C, l.Group)
	}
	top := tensor.NewLike(bottom, opt.BlobAllocator)
	if top.Empty() {
		return top, ErrOutOfMemory
	}

	perGroup := bottom.C / l.Group
	for i := range l.Group {
		for j := range perGroup {
			copy(top.Channel(j*l.Group+i).Bytes(), bottom.Channel(i*perGroup+j).Bytes())
		}
	}
	return top, nil
}
