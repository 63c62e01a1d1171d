package assembler

import (
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"pce/path_computation/model"
)

var (
	ErrEmptyPath       = errors.New("empty path")
	ErrMissingOpposite = errors.New("opposite link not in graph")
	ErrUnknownLink     = errors.New("path link not in graph")
)

// Assemble fills the A to Z and Z to A path descriptions of a solved result.
// The Z to A direction follows the opposite links, so each hop carries the
// ports of the reverse fiber rather than a mirrored copy of A to Z.
func Assemble(g *model.Graph, res *model.PathResult, svc model.Service) error {
	if res == nil || len(res.Path) == 0 {
		return ErrEmptyPath
	}

	forward := make([]*model.Link, 0, len(res.Path))
	for _, id := range res.Path {
		link, ok := g.Links.Get(id)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownLink, id)
		}
		forward = append(forward, link)
	}

	reverse := make([]*model.Link, 0, len(forward))
	for i := len(forward) - 1; i >= 0; i-- {
		link := forward[i]
		opposite, ok := g.Links.Get(link.Opposite)
		if link.Opposite == "" || !ok {
			return fmt.Errorf("%w: opposite of %s (%q)", ErrMissingOpposite, link.ID, link.Opposite)
		}
		reverse = append(reverse, opposite)
	}

	res.Rate = svc.Rate
	res.AToZ = newDirection(res, svc, forward)
	res.ZToA = newDirection(res, svc, reverse)

	log.Infof("Assemble: a-to-z resources=%d, z-to-a resources=%d, wavelength=%d",
		len(res.AToZ.Resources), len(res.ZToA.Resources), res.Wavelength)
	return nil
}

func newDirection(res *model.PathResult, svc model.Service, links []*model.Link) *model.Direction {
	d := &model.Direction{
		Rate:       svc.Rate,
		Format:     svc.Format,
		Wavelength: res.Wavelength,
	}
	if svc.SubLambda() {
		d.Wavelength = 0
		d.TribPort = res.TribPort
		d.TribSlot = res.TribSlot
	} else {
		d.Frequency = model.CenterFrequency(res.Wavelength)
	}

	first, last := links[0], links[len(links)-1]
	d.Add(model.Resource{Kind: model.ResourceTerminationPoint, NodeID: first.Source, TpID: clientOrPort(first.Client, first.SourceTP)})
	for _, link := range links {
		d.Add(model.Resource{Kind: model.ResourceNode, NodeID: link.Source})
		d.Add(model.Resource{Kind: model.ResourceTerminationPoint, NodeID: link.Source, TpID: link.SourceTP})
		d.Add(model.Resource{Kind: model.ResourceLink, LinkID: link.ID, OperState: link.OperState})
		d.Add(model.Resource{Kind: model.ResourceTerminationPoint, NodeID: link.Dest, TpID: link.DestTP})
		d.Add(model.Resource{Kind: model.ResourceNode, NodeID: link.Dest})
	}
	d.Add(model.Resource{Kind: model.ResourceTerminationPoint, NodeID: last.Dest, TpID: clientOrPort(last.Client, last.DestTP)})
	return d
}

func clientOrPort(client, port string) string {
	if client != "" {
		return client
	}
	return port
}
