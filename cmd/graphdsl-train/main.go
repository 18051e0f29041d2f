// graphdsl-train fits a linear model to synthetic data using the node DSL,
// showing the declarative graph construction, a train/infer mode split and
// checkpointing.
//
// It generates observations from random true weights plus noise, declares the
// model and its mean-squared-error loss as a node list, and runs gradient
// descent until the learned weights match the true ones.
package main

import (
	"flag"
	"fmt"
	"math/rand/v2"
	"os"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/janpfeifer/must"
	"github.com/schollz/progressbar/v3"
	"k8s.io/klog/v2"

	"github.com/KevinCoble/graphdsl/backends"
	"github.com/KevinCoble/graphdsl/dsl"
	"github.com/KevinCoble/graphdsl/types/shapes"
	"github.com/KevinCoble/graphdsl/types/tensors"

	_ "github.com/KevinCoble/graphdsl/backends/simplego"
)

var (
	flagNumExamples  = flag.Int("num_examples", 1000, "Number of examples to generate")
	flagNumFeatures  = flag.Int("num_features", 3, "Number of features")
	flagNoise        = flag.Float64("noise", 0.2, "Noise in synthetic data generation")
	flagNumSteps     = flag.Int("steps", 500, "Number of gradient descent steps to perform")
	flagLearningRate = flag.Float64("learning_rate", 0.1, "Learning rate")
	flagMomentum     = flag.Float64("momentum", 0.0, "Momentum decay; 0 selects plain gradient descent")
	flagSeed         = flag.Int64("seed", 42, "Seed for data generation and weight initialization")
	flagCheckpoint   = flag.String("checkpoint", "", "If set, save the trained weights to this file")
)

// buildExamples draws random inputs and computes labels from the true weights,
// plus gaussian noise.
func buildExamples(rng *rand.Rand, trueWeights []float64) (inputs, labels *tensors.Tensor) {
	numExamples, numFeatures := *flagNumExamples, *flagNumFeatures
	inputsFlat := make([]float64, numExamples*numFeatures)
	labelsFlat := make([]float64, numExamples)
	for example := 0; example < numExamples; example++ {
		for feature := 0; feature < numFeatures; feature++ {
			x := rng.NormFloat64()
			inputsFlat[example*numFeatures+feature] = x
			labelsFlat[example] += x * trueWeights[feature]
		}
		labelsFlat[example] += *flagNoise * rng.NormFloat64()
	}
	inputs = tensors.FromFlatDataAndDimensions(inputsFlat, numExamples, numFeatures)
	labels = tensors.FromFlatDataAndDimensions(labelsFlat, numExamples, 1)
	return
}

// modelNodes declares the linear model: pred = x·w, trained against labels with
// a mean-squared-error loss.
func modelNodes() []dsl.Node {
	weights := dsl.Variable("w").
		WithShape(shapes.Make(dtypes.Float64, *flagNumFeatures, 1)).
		UniformRandomInit(-0.1, 0.1).
		TrainableWithLoss("loss")
	if *flagMomentum > 0 {
		weights = weights.WithOptimizer(dsl.Momentum)
	}
	learning := dsl.Learning("loss").WithLearningRate(*flagLearningRate)
	if *flagMomentum > 0 {
		learning = learning.WithMomentum(*flagMomentum)
	}
	return dsl.Nodes(
		dsl.PlaceHolder("x", shapes.Make(dtypes.Float64, *flagNumExamples, *flagNumFeatures)),
		dsl.PlaceHolder("labels", shapes.Make(dtypes.Float64, *flagNumExamples, 1)).ForModes("train"),
		weights,
		dsl.MatrixMultiplication("pred").WithInputs("x", "w").TargetForModes("infer"),
		dsl.Subtraction("diff").WithInputs("pred", "labels"),
		dsl.Square("sq"),
		dsl.ReduceMean("loss").TargetForModes("train"),
		learning,
	)
}

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	backend := backends.MustNew()
	fmt.Printf("Backend: %s, %s\n", backend.Name(), backend.Description())

	rng := rand.New(rand.NewPCG(uint64(*flagSeed), uint64(*flagSeed)))
	trueWeights := make([]float64, *flagNumFeatures)
	for ii := range trueWeights {
		trueWeights[ii] = 5 * rng.NormFloat64()
	}
	fmt.Printf("True weights: %0.5v\n", trueWeights)

	inputs, labels := buildExamples(rng, trueWeights)
	fmt.Printf("Training data (inputs, labels): (%s, %s)\n\n", inputs.Shape(), labels.Shape())

	graph, err := dsl.NewGraph(backend, modelNodes(), dsl.WithSeed(*flagSeed))
	if err != nil {
		klog.Fatalf("Failed to construct graph: %+v", err)
	}

	feeds := map[string]*tensors.Tensor{"x": inputs, "labels": labels}
	bar := progressbar.NewOptions(*flagNumSteps,
		progressbar.OptionSetDescription("Training: "),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("steps"),
		progressbar.OptionSetTheme(progressbar.ThemeUnicode))
	var loss float64
	for step := 0; step < *flagNumSteps; step++ {
		results, err := graph.Run("train", feeds)
		if err != nil {
			klog.Fatalf("Training step %d failed: %+v", step, err)
		}
		loss = results["loss"].Float64Values()[0]
		must.M(bar.Add(1))
	}
	must.M(bar.Close())
	fmt.Printf("\nFinal loss: %0.5v\n", loss)
	fmt.Printf("Learned weights: %0.5v\n", graph.VariableValues()["w"].Float64Values())

	if *flagCheckpoint != "" {
		file, err := os.Create(*flagCheckpoint)
		if err != nil {
			klog.Fatalf("Failed to create checkpoint file: %+v", err)
		}
		must.M(graph.SaveCheckpoint(file))
		must.M(file.Close())
		fmt.Printf("Checkpoint saved to %s\n", *flagCheckpoint)
	}
}
