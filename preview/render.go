package preview

import (
	"context"
	"errors"
	"io"

	"github.com/sirupsen/logrus"

	"tactics-board/canvas"
	"tactics-board/core"
)

// Render draws doc at the given viewport width and writes the SVG to w. The
// board goes through a private canvas host with view access, the same path an
// interactive viewer takes, so scaling and validation behave identically.
func Render(ctx context.Context, w io.Writer, doc core.BoardDocument, width float64) error {
	factory := &Factory{}
	host := canvas.NewHost(canvas.Config{
		Level:   core.AccessView,
		Factory: factory,
		Log:     logrus.WithField("component", "preview"),
	})

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		host.Run(runCtx)
	}()

	_, err := canvas.Deserialize(ctx, host, doc, Container{Name: "preview", FixedWidth: width})
	if terr := host.Teardown(ctx); terr != nil && !errors.Is(terr, canvas.ErrClosed) && err == nil {
		err = terr
	}
	cancel()
	<-stopped
	if err != nil {
		return err
	}

	surface := factory.Surface()
	if surface == nil {
		return errors.New("preview: no surface created")
	}
	_, err = surface.WriteTo(w)
	return err
}
